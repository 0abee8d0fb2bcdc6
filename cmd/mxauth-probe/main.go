// Command mxauth-probe inspects a Matrix homeserver's authentication surface:
// the advertised login flows, the SSO identity providers, and the
// registration stages with their mandatory classification.
//
// Run:
//
//	go run ./cmd/mxauth-probe -homeserver matrix.org
//	go run ./cmd/mxauth-probe -homeserver matrix.org -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	mxauth "github.com/Physolia/mxauth"
	"github.com/Physolia/mxauth/restclient"
)

type probeReport struct {
	Homeserver   string               `json:"homeserver"`
	LoginFlows   []string             `json:"login_flows"`
	SSOProviders []mxauth.SSOProvider `json:"sso_providers,omitempty"`
	Stages       []stageReport        `json:"registration_stages,omitempty"`
	Error        string               `json:"registration_error,omitempty"`
}

type stageReport struct {
	Type      string `json:"type"`
	Mandatory bool   `json:"mandatory"`
}

func main() {
	var (
		homeserver = flag.String("homeserver", "", "homeserver address to probe")
		timeout    = flag.Duration("timeout", 30*time.Second, "per-request timeout")
		asJSON     = flag.Bool("json", false, "print the report as JSON")
	)
	flag.Parse()

	if *homeserver == "" {
		fmt.Fprintln(os.Stderr, "homeserver is required")
		os.Exit(2)
	}

	cfg := mxauth.Config{}
	cfg.Transport.Timeout = *timeout
	cfg.Transport.UserAgent = "mxauth-probe"
	cfg.Registration.AutoDummy = true
	cfg.Pending.RedisPrefix = "mxpend"
	cfg.Pending.TTL = 2 * time.Hour

	service, err := mxauth.New().
		WithConfig(cfg).
		WithClientFactory(restclient.Factory(restclient.Options{})).
		Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build:", err)
		os.Exit(1)
	}
	defer service.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2**timeout)
	defer cancel()

	flows, err := service.LoginFlow(ctx, *homeserver)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flow negotiation:", err)
		os.Exit(1)
	}

	report := probeReport{
		Homeserver:   flows.Homeserver,
		SSOProviders: flows.SSOProviders,
	}
	for _, flow := range flows.Flows {
		report.LoginFlows = append(report.LoginFlows, flow.Type)
	}

	probe, err := service.RunRegistrationStep(ctx, func(ctx context.Context, w *mxauth.RegistrationWizard) (*mxauth.RegistrationResult, error) {
		return w.RegistrationFlow(ctx)
	})
	switch {
	case err != nil:
		// Registration can be disabled entirely; the login surface is still
		// worth reporting.
		report.Error = err.Error()
	case probe.FlowResult != nil:
		for _, stage := range probe.FlowResult.MissingStages {
			report.Stages = append(report.Stages, stageReport{Type: stage.Type, Mandatory: stage.Mandatory})
		}
	}

	if *asJSON {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
		fmt.Println(string(encoded))
		return
	}

	fmt.Printf("homeserver: %s\n", report.Homeserver)
	fmt.Println("login flows:")
	for _, flowType := range report.LoginFlows {
		fmt.Printf("  %s\n", flowType)
	}
	if len(report.SSOProviders) > 0 {
		fmt.Println("sso providers:")
		for _, provider := range report.SSOProviders {
			fmt.Printf("  %s (%s)\n", provider.Name, provider.ID)
		}
	}
	switch {
	case report.Error != "":
		fmt.Printf("registration: unavailable (%s)\n", report.Error)
	case len(report.Stages) == 0:
		fmt.Println("registration: no additional stages")
	default:
		fmt.Println("registration stages:")
		for _, stage := range report.Stages {
			marker := "optional"
			if stage.Mandatory {
				marker = "mandatory"
			}
			fmt.Printf("  %s (%s)\n", stage.Type, marker)
		}
	}
}
