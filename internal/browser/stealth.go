package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// DefaultUserAgent is the user agent sent in stealth mode.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StealthArgs returns the launch flags that complement the stealth script.
func StealthArgs(userAgent string) []string {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--disable-infobars",
		"--window-size=1920,1080",
		"--user-agent=" + userAgent,
	}
}

// StealthScript masks the automation signals the evasions bundle leaves alone.
const StealthScript = `(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => false });

  if (!window.chrome) window.chrome = {};
  if (!window.chrome.runtime) window.chrome.runtime = {};

  Object.defineProperty(navigator, 'plugins', {
    get: () => [
      { 0: { type: 'application/pdf' }, description: 'Portable Document Format', filename: 'internal-pdf-viewer', length: 1, name: 'Chrome PDF Plugin' },
      { 0: { type: 'application/x-google-chrome-pdf' }, description: '', filename: 'internal-pdf-viewer', length: 1, name: 'Chrome PDF Viewer' },
      { 0: { type: 'application/x-nacl' }, description: 'Native Client Executable', filename: 'internal-nacl-plugin', length: 2, name: 'Native Client' },
    ],
  });

  if (navigator.permissions && navigator.permissions.query) {
    const originalQuery = navigator.permissions.query.bind(navigator.permissions);
    navigator.permissions.query = (parameters) => (
      parameters && parameters.name === 'notifications'
        ? Promise.resolve({ state: 'denied', onchange: null, addEventListener: () => {}, removeEventListener: () => {}, dispatchEvent: () => false })
        : originalQuery(parameters)
    );
  }

  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
})();`

// injectStealth registers the evasions bundle and StealthScript to run
// before any page script on every new document.
func injectStealth(page *rod.Page) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return err
	}
	_, err := page.EvalOnNewDocument(StealthScript)
	return err
}
