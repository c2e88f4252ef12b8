//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"cronos/internal/browser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodLauncher_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "wa", Value: "token", Path: "/"})
		fmt.Fprintln(w, `<html><body><div id="side"><input id="q"></div><canvas aria-label="qr" width="20" height="20"></canvas></body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := browser.NewRodLauncher(nil).Launch(ctx, browser.LaunchOptions{
		UserDataDir:       filepath.Join(t.TempDir(), "profile"),
		Headless:          true,
		NavigationTimeout: 20 * time.Second,
	})
	require.NoError(t, err)
	defer func() { _ = page.Quit() }()

	require.NoError(t, page.Navigate(ts.URL))

	_, ok, err := page.Find(`//*[@id="side"]`)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = page.WaitFor(ctx, `//*[@id="missing"]`, 200*time.Millisecond)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)

	el, err := page.WaitFor(ctx, `//canvas`, 5*time.Second)
	require.NoError(t, err)
	png, err := el.Screenshot()
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	cookies, err := page.Cookies()
	require.NoError(t, err)
	require.NotEmpty(t, cookies)

	require.NoError(t, page.ClearCookies())
	cleared, err := page.Cookies()
	require.NoError(t, err)
	assert.Empty(t, cleared)

	require.NoError(t, page.SetCookies(cookies))
	restored, err := page.Cookies()
	require.NoError(t, err)
	assert.Len(t, restored, len(cookies))
}
