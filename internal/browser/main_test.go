package browser

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// fakeChromeEnv turns the test binary into a stand-in browser:
// "serve" answers the DevTools endpoints, "exit" dies at once, "hang" never listens.
const fakeChromeEnv = "BROWSERNERD_FAKE_CHROME"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeChromeEnv); mode != "" {
		runFakeChrome(mode)
		return
	}
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func runFakeChrome(mode string) {
	switch mode {
	case "exit":
		os.Exit(3)
	case "hang":
		time.Sleep(time.Hour)
		os.Exit(0)
	}

	port := ""
	for _, arg := range os.Args[1:] {
		if v, ok := strings.CutPrefix(arg, "--remote-debugging-port="); ok {
			port = v
		}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, "DevTools listening on ws://127.0.0.1:"+port+"/devtools/browser/fake")

	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]TargetInfo{{ID: "FAKE", Type: "page", URL: "about:blank"}})
	})
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VersionInfo{Browser: "FakeChrome/1.0"})
	})
	_ = http.Serve(ln, mux)
	os.Exit(0)
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
