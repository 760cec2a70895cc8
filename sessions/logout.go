package sessions

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-oidc-server/clients"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	channelBack  = "back"
	channelFront = "front"
)

type backchannelTarget struct {
	client *clients.Client
	uri    string
}

// notify sends back-channel logout tokens and returns the front-channel URIs the
// logout page must load. A client with back-channel URIs is only notified there.
func (c *Coordinator) notify(ctx context.Context, s *Session) []string {
	var (
		front []string
		back  []backchannelTarget
	)
	for _, clientID := range s.AuthenticatedClients {
		client, err := c.clients.Get(ctx, clientID)
		if err != nil {
			log.Warn().Err(err).Str("client_id", clientID).Str("sid", s.Sid).Msg("logout: client lookup failed")
			continue
		}
		switch {
		case len(client.BackchannelLogoutURIs) > 0:
			for _, uri := range client.BackchannelLogoutURIs {
				back = append(back, backchannelTarget{client: client, uri: uri})
			}
		case client.FrontChannelLogoutURI != "":
			front = append(front, c.frontChannelURI(client, s))
			c.metrics.LogoutNotification(channelFront, nil)
		}
	}
	c.backchannelLogout(ctx, s, back)
	return front
}

func (c *Coordinator) frontChannelURI(client *clients.Client, s *Session) string {
	if !client.FrontChannelLogoutSessionRequired {
		return client.FrontChannelLogoutURI
	}
	return withQuery(client.FrontChannelLogoutURI, url.Values{
		"iss": {c.tokens.Issuer()},
		"sid": {s.Sid},
	})
}

// backchannelLogout posts logout tokens concurrently, each bounded by the
// back-channel timeout. Failures are logged only.
func (c *Coordinator) backchannelLogout(ctx context.Context, s *Session, targets []backchannelTarget) {
	if len(targets) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(c.maxConcurrent)
	for _, target := range targets {
		g.Go(func() error {
			err := c.postLogoutToken(gctx, s, target)
			c.metrics.LogoutNotification(channelBack, err)
			if err != nil {
				log.Warn().Err(err).Str("client_id", target.client.ID).Str("uri", target.uri).Str("sid", s.Sid).Msg("back-channel logout failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) postLogoutToken(ctx context.Context, s *Session, target backchannelTarget) error {
	client := target.client
	logoutToken, err := c.tokens.IssueLogoutToken(
		client.ID,
		client.SubjectFor(s.Subject, c.pairwiseSalt),
		s.Sid,
		client.IDTokenAlg(),
		client.SigningKeyRef(),
	)
	if err != nil {
		return errors.Wrap(err, "logout token")
	}

	ctx, cancel := context.WithTimeout(ctx, c.backchannelTimeout)
	defer cancel()
	form := url.Values{"logout_token": {logoutToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.uri, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "post")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

var logoutPage = template.Must(template.New("logout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Logged out</title>
{{- if .Redirect}}
<script>
window.onload = function () { window.location.href = {{.Redirect}}; };
</script>
{{- end}}
</head>
<body>
<p>You have been logged out.</p>
{{- range .FrontChannel}}
<iframe src="{{.}}" style="display:none"></iframe>
{{- end}}
</body>
</html>
`))

func renderLogoutPage(frontChannel []string, redirect string) ([]byte, error) {
	var buf bytes.Buffer
	err := logoutPage.Execute(&buf, struct {
		FrontChannel []string
		Redirect     string
	}{frontChannel, redirect})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
