package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certassist-backend/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("certassist.services.payments")

var ErrLinkNotFound = errors.New("payment link not found")

type Config struct {
	BaseUrl   string `json:"base_url"`
	KeyID     string `json:"key_id"`
	KeySecret string `json:"key_secret"`

	// rupees charged per certificate delivery
	AmountRupees int64  `json:"amount_rupees"`
	Currency     string `json:"currency"`
}

func DefaultConfig() Config {
	return Config{
		BaseUrl:      "https://api.razorpay.com",
		AmountRupees: 10,
		Currency:     "INR",
	}
}

// Link is a payable url for one reference, plus the id used to poll its
// paid/unpaid state later.
type Link struct {
	ID        string
	ShortUrl  string
	Reference string
}

type Service struct {
	client *resty.Client
	cfg    Config
}

func NewService(cfg Config) *Service {
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = "https://api.razorpay.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseUrl)
	client.SetBasicAuth(cfg.KeyID, cfg.KeySecret)
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, nil)

	return &Service{client: client, cfg: cfg}
}

type paymentLinkBody struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
}

type paymentLinkResponse struct {
	ID       string `json:"id"`
	ShortUrl string `json:"short_url"`
	Status   string `json:"status"`
}

// CreateLink creates a payable link for the given reference (the
// application number). Amount is taken from config, in paise on the
// wire.
func (s *Service) CreateLink(ctx context.Context, reference string) (Link, error) {
	ctx, span := tracer.Start(ctx, "CreateLink", trace.WithAttributes(
		attribute.String("reference", reference),
	))
	defer span.End()

	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(paymentLinkBody{
			Amount:      s.cfg.AmountRupees * 100,
			Currency:    s.cfg.Currency,
			ReferenceID: reference,
			Description: fmt.Sprintf("Certificate download for %s", reference),
		}).
		Post("/v1/payment_links")
	if err != nil {
		return Link{}, err
	}
	if res.IsError() {
		return Link{}, fmt.Errorf("payment link creation returned status %d: %s", res.StatusCode(), res.String())
	}

	var body paymentLinkResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return Link{}, err
	}

	return Link{ID: body.ID, ShortUrl: body.ShortUrl, Reference: reference}, nil
}

// IsPaid reports the authoritative paid/unpaid state for a previously
// created link.
func (s *Service) IsPaid(ctx context.Context, linkID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "IsPaid", trace.WithAttributes(
		attribute.String("link_id", linkID),
	))
	defer span.End()

	res, err := s.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v1/payment_links/%s", linkID))
	if err != nil {
		return false, err
	}
	if res.StatusCode() == 404 {
		return false, ErrLinkNotFound
	}
	if res.IsError() {
		return false, fmt.Errorf("payment link lookup returned status %d", res.StatusCode())
	}

	var body paymentLinkResponse
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return false, err
	}

	return body.Status == "paid", nil
}
