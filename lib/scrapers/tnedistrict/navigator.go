package tnedistrict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"certassist-backend/lib/htmlutil"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("certassist.lib.scrapers.tnedistrict")

var ErrInputNotFound = errors.New("application number input not found")
var ErrSearchNotTriggered = errors.New("search could not be triggered")

// markup selectors that indicate a human verification challenge
var captchaSelectors = []string{
	`img[src*='captcha']`,
	`img[id*='captcha']`,
	`div.g-recaptcha`,
	`iframe[src*='recaptcha']`,
}

// Capture is the raw terminal render state of one portal session.
// Parsing and classification happen downstream.
type Capture struct {
	BodyText   string
	Markup     string
	Url        string
	Screenshot string
	Captcha    bool
}

type Navigator struct {
	cfg Config
}

func NewNavigator(cfg Config) Navigator {
	return Navigator{cfg: cfg.WithDefaults()}
}

// Query drives one fresh browser session: load the form, fill the
// application number, trigger search, wait for the result pane, then
// capture text, markup and a full page screenshot. The session is torn
// down on every exit path. All navigation faults come back as errors
// alongside whatever was captured before the fault.
func (n Navigator) Query(ctx context.Context, appNo string) (out Capture, err error) {
	ctx, span := tracer.Start(ctx, "Query", trace.WithAttributes(
		attribute.String("application_no", appNo),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "navigation failed")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, n.cfg.navigationTimeout())
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(
		ctx,
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", n.cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64)"),
		)...,
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	err = chromedp.Run(browserCtx,
		chromedp.Navigate(n.cfg.PortalUrl),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Millisecond*900),
		chromedp.Location(&out.Url),
	)
	if err != nil {
		return out, fmt.Errorf("load portal: %w", err)
	}

	filledSel, err := n.fillInput(browserCtx, span, appNo)
	if err != nil {
		out.Screenshot = n.screenshot(browserCtx, "no_fill", appNo)
		n.captureContent(browserCtx, &out)
		return out, err
	}

	err = n.triggerSearch(browserCtx, span, filledSel)
	if err != nil {
		out.Screenshot = n.screenshot(browserCtx, "click_fail", appNo)
		n.captureContent(browserCtx, &out)
		return out, err
	}

	n.waitSettle(browserCtx)

	out.Screenshot = n.screenshot(browserCtx, "afterclick", appNo)
	n.captureContent(browserCtx, &out)

	captcha, err := n.detectCaptcha(ctx, out)
	if err != nil {
		slog.WarnContext(ctx, "captcha inspection failed", "err", err)
	}
	out.Captcha = captcha
	span.SetAttributes(
		attribute.Bool("captcha", out.Captcha),
		attribute.Int("body_text_len", len(out.BodyText)),
	)

	return out, nil
}

// fillInput walks the selector strategies from most specific to most
// generic and fills the first one that renders.
func (n Navigator) fillInput(ctx context.Context, span trace.Span, appNo string) (string, error) {
	for _, sel := range n.cfg.InputSelectors {
		attempt, cancel := context.WithTimeout(ctx, n.cfg.selectorTimeout())
		err := chromedp.Run(attempt,
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.Clear(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, appNo, chromedp.ByQuery),
		)
		cancel()

		span.AddEvent("fill_attempt", trace.WithAttributes(
			attribute.String("selector", sel),
			attribute.Bool("ok", err == nil),
		))
		if err == nil {
			return sel, nil
		}
		slog.DebugContext(ctx, "fill attempt failed", "selector", sel, "err", err)
	}
	return "", ErrInputNotFound
}

type boundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// triggerSearch clicks the icon-only search control sitting a fixed
// offset past the input's right edge; if the coordinate click cannot be
// computed it falls back to the known control selectors and finally to
// pressing Enter inside the input.
func (n Navigator) triggerSearch(ctx context.Context, span trace.Span, inputSel string) error {
	var box boundingBox
	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (!el) return null; const r = el.getBoundingClientRect(); return {x: r.x, y: r.y, w: r.width, h: r.height}; })()`,
		inputSel,
	)

	err := chromedp.Run(ctx, chromedp.Evaluate(js, &box))
	if err == nil && box.W > 0 {
		clickX := box.X + box.W + n.cfg.ClickOffsetX
		clickY := box.Y + box.H/2
		err = chromedp.Run(ctx,
			chromedp.Sleep(time.Millisecond*300),
			chromedp.MouseClickXY(clickX, clickY),
			chromedp.Sleep(time.Millisecond*1500),
		)
		if err == nil {
			span.AddEvent("click_attempt", trace.WithAttributes(
				attribute.String("method", "coord_click"),
				attribute.Float64("x", clickX),
				attribute.Float64("y", clickY),
			))
			return nil
		}
	}
	slog.DebugContext(ctx, "coordinate click failed", "err", err)

	for _, sel := range n.cfg.SearchSelectors {
		attempt, cancel := context.WithTimeout(ctx, n.cfg.selectorTimeout())
		err := chromedp.Run(attempt,
			chromedp.WaitVisible(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery),
			chromedp.Sleep(time.Millisecond*1200),
		)
		cancel()

		span.AddEvent("click_attempt", trace.WithAttributes(
			attribute.String("method", "fallback_selector"),
			attribute.String("selector", sel),
			attribute.Bool("ok", err == nil),
		))
		if err == nil {
			return nil
		}
	}

	err = chromedp.Run(ctx, chromedp.SendKeys(inputSel, kb.Enter, chromedp.ByQuery))
	if err != nil {
		return ErrSearchNotTriggered
	}
	span.AddEvent("click_attempt", trace.WithAttributes(
		attribute.String("method", "enter_key"),
	))
	return nil
}

// waitSettle gives the result pane a fixed settle interval and then a
// bounded wait for the document to finish loading. Exceeding the bound
// is the step's failure, not the session's.
func (n Navigator) waitSettle(ctx context.Context) {
	_ = chromedp.Run(ctx, chromedp.Sleep(time.Millisecond*1500))

	idle, cancel := context.WithTimeout(ctx, time.Second*8)
	defer cancel()
	err := chromedp.Run(idle, chromedp.Poll(
		`document.readyState === 'complete'`,
		nil,
		chromedp.WithPollingInterval(time.Millisecond*250),
	))
	if err != nil {
		slog.DebugContext(ctx, "settle wait ended early", "err", err)
	}
}

func (n Navigator) captureContent(ctx context.Context, out *Capture) {
	var body, markup, loc string
	err := chromedp.Run(ctx,
		chromedp.Location(&loc),
		chromedp.Text("body", &body, chromedp.ByQuery),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		slog.WarnContext(ctx, "content capture failed", "err", err)
	}
	if loc != "" {
		out.Url = loc
	}
	if len(body) > n.cfg.MaxRawText {
		body = body[:n.cfg.MaxRawText]
	}
	out.BodyText = body
	out.Markup = markup
}

func (n Navigator) screenshot(ctx context.Context, kind, appNo string) string {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90))
	if err != nil {
		slog.WarnContext(ctx, "screenshot failed", "kind", kind, "err", err)
		return ""
	}

	err = os.MkdirAll(n.cfg.ScreenshotDir, 0755)
	if err != nil {
		slog.WarnContext(ctx, "screenshot dir", "err", err)
		return ""
	}
	path := filepath.Join(
		n.cfg.ScreenshotDir,
		fmt.Sprintf("%s_%s_%d.png", kind, appNo, time.Now().Unix()),
	)
	err = os.WriteFile(path, buf, 0644)
	if err != nil {
		slog.WarnContext(ctx, "screenshot write failed", "path", path, "err", err)
		return ""
	}
	return path
}

func (n Navigator) detectCaptcha(ctx context.Context, out Capture) (bool, error) {
	if strings.Contains(strings.ToLower(out.BodyText), "captcha") {
		return true, nil
	}
	if out.Markup == "" {
		return false, nil
	}
	return htmlutil.HasAnyMatch(ctx, out.Markup, captchaSelectors)
}
