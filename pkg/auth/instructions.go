package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide explains where to obtain a bearer token
func ShowTokenGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "BEARER TOKEN SETUP")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "twarchive reads timelines through the API v2 and needs an app bearer token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Sign in to the developer portal and open your project")
	fmt.Fprintln(w, "2. Select the app and go to 'Keys and tokens'")
	fmt.Fprintln(w, "3. Generate (or regenerate) the Bearer Token")
	fmt.Fprintln(w, "4. Paste it at the prompt below")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token is stored in the system keyring when available, otherwise in")
	fmt.Fprintln(w, "an encrypted file in your config directory. You can also export")
	fmt.Fprintf(w, "%s instead of storing it.\n", TokenEnvVar)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Treat the token like a password: anyone holding it can use your app quota.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
