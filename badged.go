package badged

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/badgeworks/badged/auth"
	"github.com/badgeworks/badged/cors"
	"github.com/badgeworks/badged/dispatch"
	"github.com/badgeworks/badged/handlers"
	"github.com/badgeworks/badged/logging"
	"github.com/badgeworks/badged/metrics"
	"github.com/badgeworks/badged/nonce"
	"github.com/badgeworks/badged/routing"
	"github.com/badgeworks/badged/secrets"
)

// allowedCorsHeaders is the fixed preflight header allow-list: the
// signed-request protocol headers plus content type.
var allowedCorsHeaders = []string{
	"Content-Type",
	auth.HeaderSignature,
	auth.HeaderTimestamp,
	auth.HeaderNonce,
}

// Options to start badged. Every field is optional except Address, the
// zero value of the rest falls back to safe defaults or, for the stores,
// to in-memory dev-mode implementations.
type Options struct {
	// Address is the network address the service listens on.
	Address string

	// SupportListener is the address of the support endpoints
	// (/metrics). Empty disables the support listener.
	SupportListener string

	ApplicationLogLevel  string
	ApplicationLogPrefix string
	ApplicationLogJSON   bool

	CorsAllowedOrigins   []string
	CorsAllowCredentials bool
	CorsMaxAge           time.Duration

	// SecretsDir holds the per-organization signing secrets, one
	// <org>.<token-type> file each.
	SecretsDir            string
	SecretCacheTTL        time.Duration
	SecretRefreshInterval time.Duration

	// RedisAddrs are the shard addresses of the redis ring backing the
	// nonce and result stores. Empty falls back to in-memory stores,
	// which is only suitable for a single-process dev deployment.
	RedisAddrs []string
	NonceTTL   time.Duration

	RequestTimeout  time.Duration
	MaxRequestBytes int64

	// DevMode allows starting without redis and without a secrets
	// directory.
	DevMode bool

	// SecretSource overrides the file-backed secret source, used by
	// tests and embedders.
	SecretSource secrets.Source

	// NonceStore overrides the redis nonce store.
	NonceStore nonce.Store

	// ResultStore overrides the redis result store.
	ResultStore handlers.ResultStore

	// Versions resolves package versions for the package badges.
	// Defaults to an empty static source rendering "not found" badges.
	Versions handlers.VersionSource
}

// Run starts badged and blocks serving requests.
func Run(o Options) error {
	if err := logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSON,
	}); err != nil {
		return err
	}

	secretSource := o.SecretSource
	if secretSource == nil {
		if o.SecretsDir != "" {
			fp, err := secrets.NewFilePaths(o.SecretsDir, o.SecretRefreshInterval)
			if err != nil {
				return fmt.Errorf("failed to open secrets dir: %w", err)
			}
			secretSource = fp
		} else if o.DevMode {
			log.Warn("dev mode without a secrets dir, protected routes will reject everything")
			secretSource = secrets.Static{}
		} else {
			return fmt.Errorf("either SecretsDir or SecretSource is required")
		}
	}
	secretsReader := secrets.NewCachingReader(secretSource, o.SecretCacheTTL)
	defer secretsReader.Close()

	nonceStore := o.NonceStore
	resultStore := o.ResultStore
	if nonceStore == nil {
		if len(o.RedisAddrs) > 0 {
			rs := nonce.NewRedisStore(nonce.RedisOptions{
				Addrs: o.RedisAddrs,
				TTL:   o.NonceTTL,
				Log:   logging.New(),
			})
			nonceStore = rs
			if resultStore == nil {
				// The result store shares the nonce ring's pool.
				resultStore = handlers.NewRedisResultStore(rs.Ring())
			}
		} else if o.DevMode {
			nonceStore = nonce.NewInMemoryStore(o.NonceTTL)
		} else {
			return fmt.Errorf("either RedisAddrs or NonceStore is required")
		}
	}
	defer nonceStore.Close()

	if resultStore == nil {
		resultStore = handlers.NewMemoryResultStore()
	}
	defer resultStore.Close()

	versions := o.Versions
	if versions == nil {
		versions = handlers.StaticVersions{}
	}

	m := metrics.NewPrometheus(metrics.Options{EnableRuntimeMetrics: true})
	if o.SupportListener != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			log.Infof("support listener on %s", o.SupportListener)
			if err := http.ListenAndServe(o.SupportListener, mux); err != nil {
				log.Errorf("support listener failed: %v", err)
			}
		}()
	}

	d := dispatch.New(dispatch.Options{
		Resolver: routing.NewResolver(routes(resultStore, versions)...),
		Cors: cors.New(cors.Options{
			AllowedOrigins:   o.CorsAllowedOrigins,
			AllowCredentials: o.CorsAllowCredentials,
			AllowedHeaders:   allowedCorsHeaders,
			ExposeHeaders:    []string{"ETag"},
			MaxAge:           o.CorsMaxAge,
		}),
		Auth: auth.New(auth.Options{
			Secrets: secretsReader,
			Nonces:  nonceStore,
		}),
		Metrics: m,
		Timeout: o.RequestTimeout,

		MaxBodyBytes: o.MaxRequestBytes,
	})

	log.Infof("badged listening on %s", o.Address)
	return http.ListenAndServe(o.Address, d)
}

// routes is the fixed route table. Order is significant, the resolver
// picks the first match, so the unscoped package badge shadows nothing
// and precedes the scoped one.
func routes(results handlers.ResultStore, versions handlers.VersionSource) []*routing.Descriptor {
	testResults := &handlers.TestResults{Store: results}
	packageBadge := &handlers.PackageBadge{Source: versions}

	return []*routing.Descriptor{
		{
			Name:    "health",
			Method:  "GET",
			Pattern: routing.Exact("/health"),
			Handler: handlers.Health{},
		},
		{
			Name:    "packageBadge",
			Method:  "GET",
			Pattern: routing.MustTemplate("/badges/packages/{provider}/{package}"),
			Handler: packageBadge,
		},
		{
			Name:    "scopedPackageBadge",
			Method:  "GET",
			Pattern: routing.MustTemplate("/badges/packages/{provider}/{org}/{package}"),
			Handler: packageBadge,
		},
		{
			Name:    "testBadge",
			Method:  "GET",
			Pattern: routing.MustTemplate("/badges/tests/{platform}/{owner}/{repo}/{branch}"),
			Handler: routing.HandlerFunc(testResults.Badge),
		},
		{
			Name:      "ingestResults",
			Method:    "POST",
			Pattern:   routing.MustTemplate("/tests/results/{owner}/{repo}/{platform}/{branch}"),
			Handler:   routing.HandlerFunc(testResults.Ingest),
			Protected: true,
		},
		{
			Name:    "resultsRedirect",
			Method:  "GET",
			Pattern: routing.MustTemplate("/redirect/test-results/{platform}/{owner}/{repo}/{branch}"),
			Handler: routing.HandlerFunc(testResults.Redirect),
		},
	}
}
