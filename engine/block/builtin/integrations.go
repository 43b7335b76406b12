package builtin

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"strings"

	"github.com/compozy/blockgate/engine/block"
	"github.com/go-resty/resty/v2"
)

const (
	actionGmailSend  = "gmail_send"
	actionGmailRead  = "gmail_read"
	actionSlackPost  = "slack_message"
	providerGmail    = "google-email"
	providerSlack    = "slack"
	credentialOAuth  = "oauth"
	credentialAPIKey = "api_key"
)

func gmailDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "gmail",
		Name:        "Gmail",
		Description: "Send or read Gmail messages",
		Category:    "tools",
		Icon:        "mail",
		Color:       "#E0E0E0",
		Version:     "1.0.0",
		Inputs: []block.Param{
			{
				Name:        "operation",
				Type:        block.TypeString,
				Description: "send or read",
				Options:     []string{"send", "read"},
				Default:     block.Static{V: "send"},
			},
			{Name: "to", Type: block.TypeString, Description: "Recipient address"},
			{Name: "subject", Type: block.TypeString, Description: "Message subject"},
			{Name: "body", Type: block.TypeString, Description: "Message body"},
			{Name: "maxResults", Type: block.TypeNumber, Description: "Messages to read", Default: block.Static{V: 10}},
		},
		Outputs: []block.Output{
			{Name: "messageId", Type: block.TypeString},
			{Name: "messages", Type: block.TypeArray},
		},
		Credential: &block.Credential{Required: true, Provider: providerGmail, Types: []string{credentialOAuth}},
		Bind: func(params map[string]any) (string, error) {
			switch op := stringParam(params, "operation"); op {
			case "send":
				return actionGmailSend, nil
			case "read":
				return actionGmailRead, nil
			default:
				return "", fmt.Errorf("unsupported gmail operation %q", op)
			}
		},
		Actions: []string{actionGmailSend, actionGmailRead},
	}
}

// composeMessage builds an RFC 5322 message. Header values are single line;
// the subject is Q-encoded when it is not plain ASCII.
func composeMessage(to, subject, body string) (string, error) {
	if strings.ContainsAny(to, "\r\n") {
		return "", fmt.Errorf("to must not contain line breaks")
	}
	if strings.ContainsAny(subject, "\r\n") {
		return "", fmt.Errorf("subject must not contain line breaks")
	}
	addrs, err := mail.ParseAddressList(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	recipients := make([]string, len(addrs))
	for i, a := range addrs {
		recipients[i] = a.String()
	}
	return fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s",
		strings.Join(recipients, ", "), mime.QEncoding.Encode("utf-8", subject), body), nil
}

func gmailActions(out *Outbound, creds block.CredentialProvider, baseURL string) []block.Action {
	token := func(ctx context.Context, ec *block.ExecContext) (string, error) {
		tok, err := creds.Credential(ctx, ec.UserID, providerGmail)
		if err != nil {
			return "", fmt.Errorf("gmail OAuth credential unavailable: %w", err)
		}
		return tok, nil
	}
	send := block.ActionFunc{Name: actionGmailSend, Fn: func(
		ctx context.Context,
		params map[string]any,
		ec *block.ExecContext,
	) (*block.Result, error) {
		tok, err := token(ctx, ec)
		if err != nil {
			return nil, err
		}
		to := stringParam(params, "to")
		if to == "" {
			return nil, fmt.Errorf("to is required")
		}
		raw, err := composeMessage(to, stringParam(params, "subject"), stringParam(params, "body"))
		if err != nil {
			return nil, err
		}
		var sent struct {
			ID string `json:"id"`
		}
		resp, err := out.Do(ctx, http.MethodPost, baseURL+"/gmail/v1/users/me/messages/send", func(r *resty.Request) {
			r.SetAuthToken(tok).
				SetBody(map[string]string{"raw": base64.URLEncoding.EncodeToString([]byte(raw))}).
				SetResult(&sent)
		})
		if res := upstreamFailure("gmail", resp, err); res != nil {
			return res, nil
		}
		return &block.Result{
			Success: true,
			Output:  map[string]any{"messageId": sent.ID},
			Usage:   block.Usage{APICallsMade: 1},
		}, nil
	}}
	read := block.ActionFunc{Name: actionGmailRead, Fn: func(
		ctx context.Context,
		params map[string]any,
		ec *block.ExecContext,
	) (*block.Result, error) {
		tok, err := token(ctx, ec)
		if err != nil {
			return nil, err
		}
		var listed struct {
			Messages []map[string]any `json:"messages"`
		}
		resp, err := out.Do(ctx, http.MethodGet, baseURL+"/gmail/v1/users/me/messages", func(r *resty.Request) {
			r.SetAuthToken(tok).
				SetQueryParam("maxResults", fmt.Sprint(params["maxResults"])).
				SetResult(&listed)
		})
		if res := upstreamFailure("gmail", resp, err); res != nil {
			return res, nil
		}
		messages := make([]any, 0, len(listed.Messages))
		for _, m := range listed.Messages {
			messages = append(messages, m)
		}
		return &block.Result{
			Success: true,
			Output:  map[string]any{"messages": messages},
			Usage:   block.Usage{APICallsMade: 1},
		}, nil
	}}
	return []block.Action{send, read}
}

func slackDescriptor() *block.Descriptor {
	return &block.Descriptor{
		Type:        "slack",
		Name:        "Slack",
		Description: "Post a message to a Slack channel",
		Category:    "tools",
		Icon:        "slack",
		Color:       "#611f69",
		Version:     "1.0.0",
		Inputs: []block.Param{
			{Name: "channel", Type: block.TypeString, Required: true, Description: "Channel id or name"},
			{Name: "text", Type: block.TypeString, Required: true, Description: "Message text"},
			{Name: "apiKey", Type: block.TypeString, Description: "Bot token; falls back to the connected credential"},
		},
		Outputs: []block.Output{
			{Name: "ts", Type: block.TypeString, Description: "Message timestamp"},
			{Name: "channel", Type: block.TypeString},
		},
		Credential: &block.Credential{Required: true, Provider: providerSlack, Types: []string{credentialAPIKey}},
		Action:     actionSlackPost,
		Actions:    []string{actionSlackPost},
	}
}

func slackAction(out *Outbound, creds block.CredentialProvider, baseURL string) block.Action {
	return block.ActionFunc{Name: actionSlackPost, Fn: func(
		ctx context.Context,
		params map[string]any,
		ec *block.ExecContext,
	) (*block.Result, error) {
		tok := stringParam(params, "apiKey")
		if tok == "" {
			var err error
			if tok, err = creds.Credential(ctx, ec.UserID, providerSlack); err != nil {
				return nil, fmt.Errorf("slack API key unavailable: %w", err)
			}
		}
		var posted struct {
			OK      bool   `json:"ok"`
			Error   string `json:"error"`
			TS      string `json:"ts"`
			Channel string `json:"channel"`
		}
		resp, err := out.Do(ctx, http.MethodPost, baseURL+"/chat.postMessage", func(r *resty.Request) {
			r.SetAuthToken(tok).
				SetBody(map[string]any{"channel": params["channel"], "text": params["text"]}).
				SetResult(&posted)
		})
		if res := upstreamFailure("slack", resp, err); res != nil {
			return res, nil
		}
		if !posted.OK {
			return &block.Result{Error: "slack: " + strings.ReplaceAll(posted.Error, "_", " "), Usage: block.Usage{APICallsMade: 1}}, nil
		}
		return &block.Result{
			Success: true,
			Output:  map[string]any{"ts": posted.TS, "channel": posted.Channel},
			Usage:   block.Usage{APICallsMade: 1},
		}, nil
	}}
}

// upstreamFailure converts a transport error or an error status into a
// failed result. It returns nil when the call succeeded.
func upstreamFailure(service string, resp *resty.Response, err error) *block.Result {
	if err != nil && resp == nil {
		return &block.Result{Error: fmt.Sprintf("%s: %v", service, err), Usage: block.Usage{APICallsMade: 1}}
	}
	if resp != nil && resp.IsError() {
		msg := fmt.Sprintf("%s: upstream returned %d", service, resp.StatusCode())
		if resp.StatusCode() == http.StatusUnauthorized {
			msg = fmt.Sprintf("%s: credential rejected by upstream", service)
		}
		return &block.Result{Error: msg, Usage: block.Usage{APICallsMade: 1}}
	}
	return nil
}
