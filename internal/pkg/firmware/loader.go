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

package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

const cDefaultDownloadTimeout = 30 * time.Second

//ImageLoader holds the information needed to fetch an image from a local path or an http location
type ImageLoader struct {
	mutexLoader       sync.RWMutex
	downloadTimeout   time.Duration
	client            *http.Client
	lastImageLocation string
}

//NewImageLoader constructor returns a new instance of an ImageLoader
func NewImageLoader(ctx context.Context) *ImageLoader {
	logger.Debug(ctx, "init-ImageLoader")
	return &ImageLoader{
		downloadTimeout: cDefaultDownloadTimeout,
		client:          http.DefaultClient,
	}
}

//SetDownloadTimeout configures the timeout used to supervise the download of an image
func (il *ImageLoader) SetDownloadTimeout(ctx context.Context, aDlTimeout time.Duration) {
	il.mutexLoader.Lock()
	defer il.mutexLoader.Unlock()
	logger.Debugw(ctx, "setting download timeout", log.Fields{"timeout": aDlTimeout})
	il.downloadTimeout = aDlTimeout
}

//GetDownloadTimeout delivers the timeout used to supervise the download of an image
func (il *ImageLoader) GetDownloadTimeout(ctx context.Context) time.Duration {
	il.mutexLoader.RLock()
	defer il.mutexLoader.RUnlock()
	return il.downloadTimeout
}

//LastImageLocation returns the location of the image loaded last
func (il *ImageLoader) LastImageLocation() string {
	il.mutexLoader.RLock()
	defer il.mutexLoader.RUnlock()
	return il.lastImageLocation
}

//Load returns the content of the image at aLocation, either a file path or an http(s) URL
func (il *ImageLoader) Load(ctx context.Context, aLocation string) ([]byte, error) {
	var buffer []byte
	var err error
	if strings.HasPrefix(aLocation, "http://") || strings.HasPrefix(aLocation, "https://") {
		buffer, err = il.downloadImage(ctx, aLocation)
	} else {
		buffer, err = il.readImage(ctx, aLocation)
	}
	if err != nil {
		return nil, err
	}
	il.mutexLoader.Lock()
	il.lastImageLocation = aLocation
	il.mutexLoader.Unlock()
	logger.Infow(ctx, "image loaded", log.Fields{"location": aLocation, "length": len(buffer)})
	return buffer, nil
}

//readImage returns the content of a local file
func (il *ImageLoader) readImage(ctx context.Context, aFileName string) ([]byte, error) {
	file, err := os.Open(filepath.Clean(aFileName))
	if err != nil {
		return nil, err
	}
	defer func() {
		err := file.Close()
		if err != nil {
			logger.Errorw(ctx, "failed to close file", log.Fields{"error": err})
		}
	}()

	stats, statsErr := file.Stat()
	if statsErr != nil {
		return nil, statsErr
	}
	if stats.IsDir() {
		return nil, fmt.Errorf("image location %s is a directory", aFileName)
	}
	if stats.Size() > common.MaxImageSize {
		return nil, fmt.Errorf("%w: %s has %d bytes, at most %d fit", ErrImageTooLarge, aFileName,
			stats.Size(), common.MaxImageSize)
	}
	return readLimited(file, aFileName)
}

//downloadImage fetches the image from the given http location
func (il *ImageLoader) downloadImage(ctx context.Context, aURLCommand string) ([]byte, error) {
	logger.Infow(ctx, "downloading with URL", log.Fields{"url": aURLCommand})
	urlBase, err1 := url.Parse(aURLCommand)
	if err1 != nil {
		logger.Errorw(ctx, "could not parse image url", log.Fields{"url": aURLCommand, "error": err1})
		return nil, fmt.Errorf("could not parse image url: %s, error: %w", aURLCommand, err1)
	}

	dlCtx, cancel := context.WithTimeout(ctx, il.GetDownloadTimeout(ctx))
	defer cancel()
	req, err2 := http.NewRequestWithContext(dlCtx, http.MethodGet, urlBase.String(), nil)
	if err2 != nil {
		logger.Errorw(ctx, "could not generate http request", log.Fields{"url": urlBase.String(), "error": err2})
		return nil, fmt.Errorf("could not generate http request: %s, error: %w", aURLCommand, err2)
	}
	resp, err3 := il.client.Do(req)
	if err3 != nil {
		logger.Errorw(ctx, "http get error - no status, aborting", log.Fields{"url": urlBase.String(), "error": err3})
		return nil, fmt.Errorf("http get from url error - no status, aborting: %s, error: %w", aURLCommand, err3)
	}
	defer func() {
		deferredErr := resp.Body.Close()
		if deferredErr != nil {
			logger.Errorw(ctx, "error at closing http get response body", log.Fields{"url": urlBase.String(), "error": deferredErr})
		}
	}()
	if resp.StatusCode != http.StatusOK {
		logger.Errorw(ctx, "could not http get from url", log.Fields{"url": urlBase.String(), "status": resp.StatusCode})
		return nil, fmt.Errorf("http get from url: %s, status: %d", aURLCommand, resp.StatusCode)
	}
	if resp.ContentLength > common.MaxImageSize {
		return nil, fmt.Errorf("%w: %s announces %d bytes, at most %d fit", ErrImageTooLarge, aURLCommand,
			resp.ContentLength, common.MaxImageSize)
	}
	return readLimited(resp.Body, aURLCommand)
}

// readLimited reads at most one byte more than an image may have, to detect oversized sources
func readLimited(aReader io.Reader, aLocation string) ([]byte, error) {
	buffer, err := io.ReadAll(io.LimitReader(aReader, common.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read image %s: %w", aLocation, err)
	}
	if len(buffer) > common.MaxImageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrImageTooLarge, aLocation, common.MaxImageSize)
	}
	return buffer, nil
}

//LoadSegmented loads the image at aLocation and splits it into flash pages
func (il *ImageLoader) LoadSegmented(ctx context.Context, aLocation string) (*Segmented, error) {
	buffer, err := il.Load(ctx, aLocation)
	if err != nil {
		return nil, err
	}
	image, err := Segment(buffer)
	if err != nil {
		if errors.Is(err, ErrImageTooLarge) {
			logger.Errorw(ctx, "image does not fit", log.Fields{"location": aLocation, "length": len(buffer)})
		}
		return nil, err
	}
	return image, nil
}
