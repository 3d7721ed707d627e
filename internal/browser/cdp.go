package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	ilog "consentscan/internal/log"
)

// Connector opens scan pages against a running DevTools endpoint.
type Connector struct {
	devtoolsURL string
}

// NewConnector returns a connector for the given DevTools URL
// (e.g. http://127.0.0.1:9222).
func NewConnector(devtoolsURL string) *Connector {
	return &Connector{devtoolsURL: devtoolsURL}
}

// NewPage creates a fresh tab and attaches to it. The caller owns the
// returned page and must Close it.
func (c *Connector) NewPage(ctx context.Context) (Page, error) {
	dt := devtool.New(c.devtoolsURL)
	target, err := dt.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	conn, err := rpcc.DialContext(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		_ = dt.Close(ctx, target)
		return nil, fmt.Errorf("dial target: %w", err)
	}

	pctx, cancel := context.WithCancel(context.Background())
	p := &cdpPage{
		dt:       dt,
		target:   target,
		conn:     conn,
		client:   cdp.NewClient(conn),
		ctx:      pctx,
		cancel:   cancel,
		requests: make(chan Request, 256),
	}
	if err := p.enable(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

type cdpPage struct {
	dt       *devtool.DevTools
	target   *devtool.Target
	conn     *rpcc.Conn
	client   *cdp.Client
	ctx      context.Context
	cancel   context.CancelFunc
	requests chan Request
}

func (p *cdpPage) enable() error {
	if err := p.client.Page.Enable(p.ctx); err != nil {
		return err
	}
	if err := p.client.Network.Enable(p.ctx, nil); err != nil {
		return err
	}
	go p.consume()
	return nil
}

// consume receives request events for the page lifetime and forwards them
// on the requests channel. A full channel drops the event rather than
// blocking the protocol stream.
func (p *cdpPage) consume() {
	stream, err := p.client.Network.RequestWillBeSent(p.ctx)
	if err != nil {
		ilog.L().Warn().Err(err).Msg("subscribe request stream")
		return
	}
	defer stream.Close()
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		req := Request{
			URL:       ev.Request.URL,
			Method:    ev.Request.Method,
			Timestamp: time.Now().UnixMilli(),
		}
		if ev.Request.PostData != nil {
			req.PostBody = *ev.Request.PostData
		}
		select {
		case p.requests <- req:
		default:
			ilog.L().Debug().Str("url", req.URL).Msg("request channel full, event dropped")
		}
	}
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	fired, err := p.client.Page.DOMContentEventFired(ctx)
	if err != nil {
		return err
	}
	defer fired.Close()

	nav, err := p.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return err
	}
	if nav.ErrorText != nil && *nav.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, *nav.ErrorText)
	}
	if _, err := fired.Recv(); err != nil {
		return err
	}
	return nil
}

func (p *cdpPage) Evaluate(ctx context.Context, expr string) (string, error) {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true).SetAwaitPromise(true)
	reply, err := p.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return "", err
	}
	if reply.ExceptionDetails != nil {
		return "", fmt.Errorf("evaluate: %s", reply.ExceptionDetails.Text)
	}
	return string(reply.Result.Value), nil
}

func (p *cdpPage) Requests() <-chan Request { return p.requests }

func (p *cdpPage) Cookies(ctx context.Context) ([]Cookie, error) {
	reply, err := p.client.Network.GetCookies(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(reply.Cookies))
	for _, c := range reply.Cookies {
		out = append(out, Cookie{
			Name:    c.Name,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	return out, nil
}

func (p *cdpPage) Close() error {
	p.cancel()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	// Closing the tab needs its own context; the page context is gone.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return p.dt.Close(ctx, p.target)
}
