// Package discovery finds i3X servers with mDNS/DNS-SD.
//
// Servers announce the _i3x._tcp service. The instance name is free text,
// usually the server's display name. TXT records are optional:
//
//	path  API base path, e.g. "/i3x/v1" (default "/")
//	tls   "1" when the server requires https
//	ver   API version
//	name  display name
//
// A Browser merges records from several interfaces into one Server per
// instance name, and Server.URL builds the base URL to pass to the client:
//
//	b := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
//	srv, err := b.Find(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	baseURL, err := srv.URL()
package discovery
