package serialmux

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/dora-sat/flight/internal/httputil"
)

// AttachAdminRoutes attaches radio debugging endpoints to the given HTTP mux
// under /debug/. These routes are accessible only over localhost and are not
// publicly accessible.
func (f *Framer[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Write raw bytes to the radio, bypassing the comms engine.
	debug.HandleFunc("radio-send", "write a hex payload to the radio", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			io.WriteString(w, radioSendForm)
			return
		}
		payload, err := ParseHexPayload(strings.TrimSpace(r.FormValue("payload")))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := f.Write(payload); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write payload: %v", err), http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote %d bytes (%s) to radio", len(payload), hex.EncodeToString(payload)))
	})

	debug.HandleSilentFunc("radio-stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, f.Stats())
	})
}

const radioSendForm = `<!DOCTYPE html>
<html><body>
<form method="POST">
<label>Payload (hex) <input name="payload" size="64"></label>
<button type="submit">Send</button>
</form>
</body></html>
`
