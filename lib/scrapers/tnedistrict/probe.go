package tnedistrict

import (
	"context"
	"fmt"
	"time"

	"certassist-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// Probe is a lightweight reachability check against the portal, used by
// health endpoints so operators can tell "portal down" apart from
// scraper faults. It never drives the form.
type Probe struct {
	client *resty.Client
	url    string
}

func NewProbe(portalUrl string) Probe {
	client := resty.New()
	client.SetTimeout(time.Second * 15)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	restyutil.InstrumentClient(client, tracer, nil)

	return Probe{client: client, url: portalUrl}
}

func (p Probe) Check(ctx context.Context) error {
	res, err := p.client.R().
		SetContext(ctx).
		Get(p.url)
	if err != nil {
		return err
	}
	if res.StatusCode() >= 500 {
		return fmt.Errorf("portal returned status %d", res.StatusCode())
	}
	return nil
}
