/*
 * Copyright 2020-present Open Networking Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//Package main -> this is the entry point of the bootloader upgrade tool
package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/config"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/crc"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/firmware"
)

func pageTable(aImage *firmware.Segmented) pterm.TableData {
	data := pterm.TableData{{"Page", "Offset", "CRC"}}
	for i := 0; i < aImage.PageCount(); i++ {
		page := aImage.Page(i)
		data = append(data, []string{
			fmt.Sprint(i),
			fmt.Sprintf("0x%06x", i*len(page)),
			fmt.Sprintf("%08x", crc.Compute(&page)),
		})
	}
	return data
}

// runInspect shows how an image would be uploaded without touching the bus
func runInspect(ctx context.Context, cf *config.UpgradeFlags) error {
	loader := firmware.NewImageLoader(ctx)
	loader.SetDownloadTimeout(ctx, cf.DownloadTimeout)
	image, err := loader.LoadSegmented(ctx, cf.Image)
	if err != nil {
		return err
	}
	printImageSummary(loader.LastImageLocation(), image)
	pterm.DefaultSection.Println("Pages")
	return pterm.DefaultTable.WithHasHeader().WithData(pageTable(image)).Render()
}
