// Package scan owns the per-target scan session: one browser page, the
// phase state machine, and the capture pipeline feeding each intercepted
// request through classification and deduplication into the active phase
// buffer.
package scan

import (
	"context"
	"sync"
	"time"

	"consentscan/internal/browser"
	"consentscan/internal/classify"
	"consentscan/internal/consent"
	"consentscan/internal/dedup"
	"consentscan/internal/interact"
	ilog "consentscan/internal/log"
	"consentscan/pkg/model"
)

// Wait budgets per phase. Fast mode halves the capture windows.
var (
	preConsentWait  = 4 * time.Second
	postConsentWait = 4 * time.Second
	consentSettle   = 2 * time.Second
)

// Session drives one target through the scan phases. Phases run strictly
// sequentially; network capture runs continuously in the background from
// NAVIGATE onward.
type Session struct {
	cfg        model.ScanConfig
	page       browser.Page
	classifier *classify.Classifier
	filter     *dedup.Filter
	cmp        *consent.Interactor
	sim        *interact.Simulator

	mu          sync.Mutex
	capturing   bool
	phase       model.CapturePhase
	pre         []model.NetworkEvent
	post        []model.NetworkEvent
	cookiesPre  []model.CookieRecord
	cookiesPost []model.CookieRecord
	cmpSt       model.CMPState
	forms       []interact.FormInfo
}

// NewSession wires a session around an attached page. The caller keeps
// ownership of the page.
func NewSession(cfg model.ScanConfig, page browser.Page) *Session {
	return &Session{
		cfg:        cfg,
		page:       page,
		classifier: classify.New(),
		filter:     dedup.New(),
		cmp:        consent.New(page),
		sim:        interact.New(page, cfg.FastMode),
		phase:      model.PreConsent,
	}
}

// Run executes the phase sequence and always returns a report: a partial
// FAILED report on navigation error or timeout, a complete one otherwise.
func (s *Session) Run(ctx context.Context) *model.ComplianceReport {
	started := time.Now()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.emitPhase(model.PhaseInit, "starting scan")
	go s.capture(ctx)

	s.emitPhase(model.PhaseNavigate, "loading "+s.cfg.URL)
	s.setCapturing(true)
	if err := s.page.Navigate(ctx, s.cfg.URL); err != nil {
		ilog.L().Warn().Err(err).Str("url", s.cfg.URL).Msg("navigation failed")
		s.emitPhase(model.PhaseFailed, "navigation failed")
		return buildReport(s, started, true, err.Error())
	}

	s.emitPhase(model.PhasePreConsent, "capturing pre-consent traffic")
	if err := browser.Wait(ctx, s.budget(preConsentWait)); err != nil {
		return s.failTimeout(started)
	}
	st := s.cmp.CheckState(ctx)
	if len(st.BlockedScripts) == 0 {
		// The standalone lister catches consent-gated tags the probe's
		// attribute filter misses.
		st.BlockedScripts = s.cmp.BlockedScripts(ctx)
	}
	s.setCMPState(st)
	s.snapshotCookies(ctx, model.PreConsent)

	if s.wantsInteraction() {
		s.emitPhase(model.PhaseInteraction, "simulating user interaction")
		s.sim.SimulateScroll(ctx)
		s.sim.SimulateClicks(ctx)
		s.setForms(s.sim.FindForms(ctx))
		s.sim.InteractWithForm(ctx)
		if ctx.Err() != nil {
			return s.failTimeout(started)
		}
	}

	if s.cfg.WantsPhase(model.PhaseConsentAccept) {
		s.emitPhase(model.PhaseConsentAccept, "accepting consent")
		clicked, selector := s.cmp.AcceptCookies(ctx)
		if clicked {
			ilog.L().Debug().Str("selector", selector).Msg("consent accepted")
			// Consent is granted at the click. The settle wait exists to
			// let newly unblocked trackers fire, so everything captured
			// from here on is post-consent traffic.
			s.setPhase(model.PostConsent)
			if err := browser.Wait(ctx, s.budget(consentSettle)); err != nil {
				return s.failTimeout(started)
			}
		}
		// Latest probe wins: the CMP records the response now. The
		// pre-consent blocked-script listing is kept; accepted scripts
		// disappear from the post-accept probe.
		st := s.cmp.CheckState(ctx)
		if len(st.BlockedScripts) == 0 {
			st.BlockedScripts = s.cmpState().BlockedScripts
		}
		s.setCMPState(st)
	}

	if s.cfg.WantsPhase(model.PhasePostConsent) {
		s.emitPhase(model.PhasePostConsent, "capturing post-consent traffic")
		s.setPhase(model.PostConsent)
		if err := browser.Wait(ctx, s.budget(postConsentWait)); err != nil {
			return s.failTimeout(started)
		}
		s.snapshotCookies(ctx, model.PostConsent)
	}

	s.setCapturing(false)
	s.emitPhase(model.PhaseDone, "scan complete")
	return buildReport(s, started, false, "")
}

// capture consumes the request stream for the session lifetime. Capture
// errors are contained here; they never abort the scan.
func (s *Session) capture(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-s.page.Requests():
			if !ok {
				return
			}
			s.handleRequest(req)
		}
	}
}

func (s *Session) handleRequest(req browser.Request) {
	defer func() {
		if r := recover(); r != nil {
			ilog.L().Warn().Any("panic", r).Str("url", req.URL).Msg("capture error")
		}
	}()

	s.mu.Lock()
	capturing := s.capturing
	phase := s.phase
	s.mu.Unlock()
	if !capturing {
		return
	}

	events := s.classifier.Classify(req.URL, req.Method, req.PostBody, req.Timestamp, phase)
	for _, ev := range events {
		if !s.filter.Accept(ev.URL, ev.EventName) {
			continue
		}
		s.mu.Lock()
		if ev.Phase == model.PostConsent {
			s.post = append(s.post, ev)
		} else {
			s.pre = append(s.pre, ev)
		}
		s.mu.Unlock()
	}
}

func (s *Session) snapshotCookies(ctx context.Context, phase model.CapturePhase) {
	cookies, err := s.page.Cookies(ctx)
	if err != nil {
		ilog.L().Debug().Err(err).Msg("cookie snapshot failed")
		return
	}
	records := make([]model.CookieRecord, 0, len(cookies))
	for _, c := range cookies {
		records = append(records, model.CookieRecord{
			Name:    c.Name,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: c.Expires,
			Phase:   phase,
		})
	}
	s.mu.Lock()
	if phase == model.PostConsent {
		s.cookiesPost = records
	} else {
		s.cookiesPre = records
	}
	s.mu.Unlock()
}

func (s *Session) failTimeout(started time.Time) *model.ComplianceReport {
	s.setCapturing(false)
	s.emitPhase(model.PhaseFailed, "scan timed out")
	return buildReport(s, started, true, "scan timed out")
}

func (s *Session) emitPhase(p model.Phase, label string) {
	if s.cfg.OnPhase != nil {
		s.cfg.OnPhase(p, label)
	}
}

func (s *Session) wantsInteraction() bool {
	if s.cfg.SkipInteractions || s.cfg.FastMode {
		return false
	}
	return s.cfg.WantsPhase(model.PhaseInteraction)
}

// budget scales a wait for fast mode.
func (s *Session) budget(d time.Duration) time.Duration {
	if s.cfg.FastMode {
		return d / 2
	}
	return d
}

func (s *Session) setCapturing(on bool) {
	s.mu.Lock()
	s.capturing = on
	s.mu.Unlock()
}

func (s *Session) setPhase(p model.CapturePhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Session) setCMPState(st model.CMPState) {
	s.mu.Lock()
	s.cmpSt = st
	s.mu.Unlock()
}

func (s *Session) setForms(forms []interact.FormInfo) {
	s.mu.Lock()
	s.forms = forms
	s.mu.Unlock()
}

func (s *Session) cmpState() model.CMPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmpSt
}

func (s *Session) buffers() (pre, post []model.NetworkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NetworkEvent(nil), s.pre...), append([]model.NetworkEvent(nil), s.post...)
}

func (s *Session) cookies() (pre, post []model.CookieRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CookieRecord(nil), s.cookiesPre...), append([]model.CookieRecord(nil), s.cookiesPost...)
}

func (s *Session) formRecords() []model.FormRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	out := make([]model.FormRecord, 0, len(s.forms))
	for _, f := range s.forms {
		out = append(out, model.FormRecord{
			Index:       f.Index,
			Type:        string(f.Type),
			Visible:     f.Visible,
			FieldLabels: append([]string(nil), f.FieldLabels...),
		})
	}
	return out
}
