/*
Package folioclient is a Go client for the Folio admin API.

The API authenticates with cookies, so a Client behaves like a browser: it
keeps the session and CSRF cookies in a jar and echoes the CSRF token in the
X-CSRF-Token header on every state-changing request.

	c, err := folioclient.New("https://cms.example.com")

	// Obtain the CSRF cookie, then sign in.
	_, err = c.CSRF(ctx)
	login, err := c.Login(ctx, "admin@example.com", password)

	// Invite an editor. AcceptURL carries the one-time token.
	inv, err := c.Invite(ctx, "alice@example.com", "editor")

Errors from the server are returned as *APIError. Use the helpers to branch on
the error class:

	if folioclient.IsRateLimited(err) {
		var apiErr *folioclient.APIError
		errors.As(err, &apiErr)
		time.Sleep(apiErr.RetryAfter)
	}
*/
package folioclient
