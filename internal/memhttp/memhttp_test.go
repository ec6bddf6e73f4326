// Copyright 2021-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memhttp_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/openmined/serde/internal/assert"
	"github.com/openmined/serde/internal/memhttp"
	"github.com/openmined/serde/internal/memhttp/memhttptest"
)

func TestServer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		opts      []memhttp.Option
		wantMajor int
	}{
		{name: "http2", wantMajor: 2},
		{name: "http1", opts: []memhttp.Option{memhttp.WithoutHTTP2()}, wantMajor: 1},
	}
	for _, testcase := range tests {
		testcase := testcase
		t.Run(testcase.name, func(t *testing.T) {
			t.Parallel()
			const concurrency = 50
			echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.ProtoMajor != testcase.wantMajor {
					w.WriteHeader(http.StatusHTTPVersionNotSupported)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = io.Copy(w, r.Body)
			})
			server := memhttptest.NewServer(t, echo, testcase.opts...)
			client := server.Client()
			var wg sync.WaitGroup
			for i := 0; i < concurrency; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					payload := []byte{0, 0, 0, 0, 3, 'a', 'b', 'c'}
					req, err := http.NewRequestWithContext(
						context.Background(),
						http.MethodPost,
						server.URL(),
						bytes.NewReader(payload),
					)
					if err != nil {
						t.Error(err)
						return
					}
					res, err := client.Do(req)
					if err != nil {
						t.Error(err)
						return
					}
					defer res.Body.Close()
					body, err := io.ReadAll(res.Body)
					if err != nil {
						t.Error(err)
						return
					}
					if res.StatusCode != http.StatusOK || !bytes.Equal(body, payload) {
						t.Errorf("got status %d body %q", res.StatusCode, body)
					}
				}()
			}
			wg.Wait()
		})
	}
}

func TestRegisterOnShutdown(t *testing.T) {
	t.Parallel()
	okay := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := memhttp.NewServer(okay)
	done := make(chan struct{})
	server.RegisterOnShutdown(func() {
		close(done)
	})
	assert.Nil(t, server.Shutdown(context.Background()))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("OnShutdown hook didn't fire")
	}
}

func TestDialAfterClose(t *testing.T) {
	t.Parallel()
	server := memhttp.NewServer(http.NotFoundHandler(), memhttp.WithCleanupTimeout(time.Second))
	assert.Nil(t, server.Cleanup())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL(), http.NoBody)
	assert.Nil(t, err)
	_, err = server.Client().Do(req)
	assert.NotNil(t, err)
}
