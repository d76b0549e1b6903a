package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// CredentialCheck is the self-test result for one demo account.
type CredentialCheck struct {
	Email        string `json:"email"`
	ExpectedRole string `json:"expected_role"`
	ActualRole   string `json:"actual_role,omitempty"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
}

// DatabaseCheck reports whether the store answered a ping.
type DatabaseCheck struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// DiagnosticsReport is the development troubleshooting snapshot. Variable
// values are never included, only whether each one is set.
type DiagnosticsReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Environment string            `json:"environment"`
	Credentials []CredentialCheck `json:"credentials"`
	Variables   map[string]bool   `json:"variables"`
	Database    DatabaseCheck     `json:"database"`
	Healthy     bool              `json:"healthy"`
}

// DiagnosticsService builds the development diagnostics report.
type DiagnosticsService struct {
	auth        *AuthService
	ping        func(context.Context) error
	variables   []string
	lookup      func(string) (string, bool)
	environment string
	now         func() time.Time
	logger      *slog.Logger
}

// NewDiagnosticsService wires the diagnostics service. lookup defaults to os.LookupEnv.
func NewDiagnosticsService(auth *AuthService, ping func(context.Context) error, variables []string, environment string, lookup func(string) (string, bool), now func() time.Time, logger *slog.Logger) *DiagnosticsService {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if now == nil {
		now = time.Now
	}
	return &DiagnosticsService{
		auth:        auth,
		ping:        ping,
		variables:   append([]string(nil), variables...),
		lookup:      lookup,
		environment: environment,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Report runs every check. Individual failures are recorded in the report;
// only a nil service is an error.
func (s *DiagnosticsService) Report(ctx context.Context) (DiagnosticsReport, error) {
	if s == nil {
		return DiagnosticsReport{}, fmt.Errorf("DiagnosticsService is nil")
	}

	report := DiagnosticsReport{
		GeneratedAt: s.now().UTC(),
		Environment: s.environment,
		Variables:   make(map[string]bool, len(s.variables)),
		Healthy:     true,
	}

	for _, name := range s.variables {
		value, ok := s.lookup(name)
		report.Variables[name] = ok && value != ""
	}

	for _, account := range DemoAccounts {
		check := s.checkAccount(ctx, account)
		if !check.OK {
			report.Healthy = false
		}
		report.Credentials = append(report.Credentials, check)
	}

	report.Database = s.checkDatabase(ctx)
	if !report.Database.OK {
		report.Healthy = false
	}

	serviceLogger(ctx, s.logger, "DiagnosticsService", "Report").InfoContext(ctx, "diagnostics generated", "healthy", report.Healthy)
	return report, nil
}

func (s *DiagnosticsService) checkAccount(ctx context.Context, account DemoAccount) CredentialCheck {
	check := CredentialCheck{Email: account.Email, ExpectedRole: account.Role.String()}
	if s.auth == nil {
		check.Error = "auth service not configured"
		return check
	}

	result, err := s.auth.SignIn(ctx, SignInParams{Email: account.Email, Password: account.Password, Fingerprint: "diagnostics"})
	if err != nil {
		check.Error = Classify(err).Message
		return check
	}
	check.ActualRole = result.User.Role.String()
	check.OK = result.User.Role == account.Role
	if !check.OK {
		check.Error = "role does not match"
	}
	if signOutErr := s.auth.SignOut(ctx, result.Session.Token); signOutErr != nil {
		serviceLogger(ctx, s.logger, "DiagnosticsService", "Report").WarnContext(ctx, "diagnostic session not revoked", "error", signOutErr)
	}
	return check
}

func (s *DiagnosticsService) checkDatabase(ctx context.Context) DatabaseCheck {
	if s.ping == nil {
		return DatabaseCheck{Error: "no database configured"}
	}
	started := time.Now()
	err := s.ping(ctx)
	check := DatabaseCheck{OK: err == nil, LatencyMS: time.Since(started).Milliseconds()}
	if err != nil {
		check.Error = err.Error()
	}
	return check
}
