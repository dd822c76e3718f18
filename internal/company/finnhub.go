package company

import (
	"context"
	"errors"
	"fmt"
	"strings"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"
)

var ErrUnknownTicker = errors.New("unknown ticker")

// Profile is the slice of a Finnhub company profile stored alongside chunks.
type Profile struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Industry string `json:"industry"`
}

type FinnhubResolver struct {
	client *finnhub.DefaultApiService
}

// NewFinnhubResolver builds a resolver; baseURL overrides the API host when set.
func NewFinnhubResolver(apiKey, baseURL string) *FinnhubResolver {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	if baseURL != "" {
		cfg.Servers = finnhub.ServerConfigurations{{URL: strings.TrimRight(baseURL, "/")}}
	}
	client := finnhub.NewAPIClient(cfg).DefaultApi
	return &FinnhubResolver{client: client}
}

func (r *FinnhubResolver) Profile(ctx context.Context, ticker string) (*Profile, error) {
	res, _, err := r.client.CompanyProfile2(ctx).Symbol(ticker).Execute()
	if err != nil {
		return nil, fmt.Errorf("finnhub company profile failed: %w", err)
	}
	// Finnhub answers unknown symbols with an empty object.
	if res.GetName() == "" && res.GetTicker() == "" {
		return nil, ErrUnknownTicker
	}

	p := &Profile{
		Ticker:   res.GetTicker(),
		Name:     res.GetName(),
		Exchange: res.GetExchange(),
		Industry: res.GetFinnhubIndustry(),
	}
	if p.Ticker == "" {
		p.Ticker = ticker
	}
	return p, nil
}
