package serialmux

import (
	"context"
	"net/http"

	"github.com/banshee-data/bandlink/internal/device"
)

// DisabledTransport is a no-op transport used when serial access is turned
// off (-disable-serial). Every connect attempt ends in device not found, so
// the server, demo mode and admin routes run without hardware.
type DisabledTransport struct{}

var _ device.Transport = DisabledTransport{}

func NewDisabledTransport() DisabledTransport { return DisabledTransport{} }

func (DisabledTransport) ListBonded(context.Context) ([]device.Handle, error) { return nil, nil }

func (DisabledTransport) Discover(context.Context) ([]device.Handle, error) { return nil, nil }

func (DisabledTransport) Pair(context.Context, device.Handle) error { return device.ErrPairingFailed }

func (DisabledTransport) OnDeviceDisconnected(func(device.Handle)) func() { return func() {} }

func (DisabledTransport) Close() error { return nil }

func (DisabledTransport) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("serial disabled"))
	})
}
