package httpsurface

import (
	"net/http"

	"github.com/e-roder/pycastblaster-go/internal/logging"
)

// ServePathUnderForTest exposes the path-traversal-guarded file server for
// direct testing, bypassing http.ServeMux's own path-cleaning redirect so
// the guard inside servePathUnder is exercised directly.
func ServePathUnderForTest(w http.ResponseWriter, root, relative string) {
	servePathUnder(w, root, relative, logging.GetLogger("httpsurface-test"))
}
