package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html><html><head><title> Planes y precios </title>
<style>body{color:red}</style><script>var x = 1;</script></head>
<body><nav>Inicio | Blog</nav>
<h1>Plan Empresa</h1><p>Incluye   soporte 24/7 y
onboarding.</p><ul><li>Hasta 100 usuarios</li><li>Descuento anual</li></ul>
<footer>© 2026</footer></body></html>`

func TestExtractText(t *testing.T) {
	title, text, err := ExtractText(strings.NewReader(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "Planes y precios", title)
	assert.Equal(t, "Plan Empresa\nIncluye soporte 24/7 y onboarding.\nHasta 100 usuarios\nDescuento anual", text)
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "Blog")
}

func TestValidateURL(t *testing.T) {
	for _, bad := range []string{"", "ftp://x.com/a", "javascript:alert(1)", "http://", "not a url"} {
		_, err := ValidateURL(bad)
		assert.ErrorIs(t, err, ErrInvalidURL, bad)
	}
	_, err := ValidateURL("https://example.com/precios")
	assert.NoError(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, samplePage)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "  solo texto \n")
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF-1.4")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newHTTPFetcher(time.Second, func(netip.AddrPort) bool { return true })
	ctx := context.Background()

	p, err := f.Fetch(ctx, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "Planes y precios", p.Title)
	assert.Contains(t, p.Text, "Descuento anual")

	p, err = f.Fetch(ctx, srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "solo texto", p.Text)

	_, err = f.Fetch(ctx, srv.URL+"/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedPage)

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.Error(t, err)
}

func TestHTTPFetcherRefusesInternalAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "internal-secret-token")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second)
	p, err := f.Fetch(context.Background(), srv.URL+"/computeMetadata/v1/")
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Nil(t, p)
}

func TestHTTPFetcherBlocksRedirectToInternalAddress(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "internal-secret-token")
	}))
	defer internal.Close()
	internalAddr := netip.MustParseAddrPort(strings.TrimPrefix(internal.URL, "http://"))

	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/secret", http.StatusFound)
	}))
	defer public.Close()
	publicAddr := netip.MustParseAddrPort(strings.TrimPrefix(public.URL, "http://"))

	// Both servers listen on loopback; only the first hop's port is allowed.
	var dialed []netip.AddrPort
	f := newHTTPFetcher(time.Second, func(ap netip.AddrPort) bool {
		dialed = append(dialed, ap)
		return ap.Port() == publicAddr.Port()
	})

	_, err := f.Fetch(context.Background(), public.URL+"/go")
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Contains(t, dialed, internalAddr)
}

func TestPublicOnly(t *testing.T) {
	for _, blocked := range []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254",
		"100.64.0.1", "0.0.0.0", "::1", "fe80::1", "fd00::1", "::ffff:127.0.0.1", "224.0.0.1",
	} {
		assert.False(t, PublicOnly(netip.MustParseAddr(blocked)), blocked)
	}
	for _, ok := range []string{"8.8.8.8", "151.101.1.69", "2606:4700::1111"} {
		assert.True(t, PublicOnly(netip.MustParseAddr(ok)), ok)
	}
}
