package dispatch

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/advdv/twine/vhost"
)

// ApplyCORS sets the Access-Control-Allow-* headers of c on hdr. Nothing is set when c is disabled.
// The [vhost.RequestOrigin] origin echoes the request's Origin header, or "*" when there is none.
func ApplyCORS(hdr http.Header, r *http.Request, c vhost.CORS) {
	if !c.Enabled {
		return
	}

	origin := c.AllowOrigin
	if origin == vhost.RequestOrigin {
		origin = r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
	}

	hdr.Set("Access-Control-Allow-Origin", origin)

	if len(c.AllowMethods) > 0 {
		hdr.Set("Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", "))
	}

	if len(c.AllowHeaders) > 0 {
		hdr.Set("Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", "))
	}

	hdr.Set("Access-Control-Allow-Credentials", strconv.FormatBool(c.AllowCredentials))
}
