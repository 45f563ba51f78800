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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

func TestLoadLocalFile(t *testing.T) {
	ctx := context.Background()
	raw := counting(2000)
	path := filepath.Join(t.TempDir(), "stm32_sine.bin")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	loader := NewImageLoader(ctx)
	buffer, err := loader.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, raw, buffer)
	assert.Equal(t, path, loader.LastImageLocation())

	image, err := loader.LoadSegmented(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, image.PageCount())
}

func TestLoadLocalFileErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	loader := NewImageLoader(ctx)

	_, err := loader.Load(ctx, filepath.Join(dir, "missing.bin"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = loader.Load(ctx, dir)
	assert.Error(t, err)

	big := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(big, make([]byte, common.MaxImageSize+1), 0o600))
	_, err = loader.Load(ctx, big)
	assert.True(t, errors.Is(err, ErrImageTooLarge))
	assert.Empty(t, loader.LastImageLocation())
}

func TestLoadEmptyFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	image, err := NewImageLoader(ctx).LoadSegmented(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, image.PageCount())
}

func TestDownloadImage(t *testing.T) {
	ctx := context.Background()
	raw := counting(5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stm32_sine.bin":
			_, _ = w.Write(raw)
		case "/huge.bin":
			_, _ = w.Write(make([]byte, common.MaxImageSize+10))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	loader := NewImageLoader(ctx)
	buffer, err := loader.Load(ctx, server.URL+"/stm32_sine.bin")
	require.NoError(t, err)
	assert.Equal(t, raw, buffer)

	_, err = loader.Load(ctx, server.URL+"/missing.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 404")

	_, err = loader.Load(ctx, server.URL+"/huge.bin")
	assert.True(t, errors.Is(err, ErrImageTooLarge))
}

func TestDownloadTimeout(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	loader := NewImageLoader(ctx)
	loader.SetDownloadTimeout(ctx, 50*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, loader.GetDownloadTimeout(ctx))
	_, err := loader.Load(ctx, server.URL+"/slow.bin")
	assert.Error(t, err)
}
