package api

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/carlton-source/sbtc-batch-lib/internal/logger"
)

// StartServer registers the routes and serves until the listener fails.
// Everything except /auth and the CSV template download requires a bearer
// token.
func (s *API) StartServer() error {
	http.HandleFunc("/auth", s.CORSMiddleware(s.HandleAuth))
	http.HandleFunc("/csv/template", s.CORSMiddleware(s.HandleCSVTemplate))

	http.HandleFunc("/csv/parse", s.CORSMiddleware(s.JWTMiddleware(s.HandleParseCSV)))
	http.HandleFunc("/price", s.CORSMiddleware(s.JWTMiddleware(s.HandlePrice)))
	http.HandleFunc("/templates", s.CORSMiddleware(s.JWTMiddleware(s.HandleTemplates)))
	http.HandleFunc("/templates/delete", s.CORSMiddleware(s.JWTMiddleware(s.HandleDeleteTemplate)))
	http.HandleFunc("/batch/validate", s.CORSMiddleware(s.JWTMiddleware(s.HandleValidateBatch)))
	http.HandleFunc("/batch/submit", s.CORSMiddleware(s.JWTMiddleware(s.HandleSubmit)))
	http.HandleFunc("/batch/progress", s.CORSMiddleware(s.JWTMiddleware(s.HandleProgress)))
	http.HandleFunc("/mint", s.CORSMiddleware(s.JWTMiddleware(s.HandleMint)))
	http.HandleFunc("/history", s.CORSMiddleware(s.JWTMiddleware(s.HandleHistory)))
	http.HandleFunc("/history/export", s.CORSMiddleware(s.JWTMiddleware(s.HandleHistoryExport)))
	http.HandleFunc("/history/daterange", s.CORSMiddleware(s.JWTMiddleware(s.HandleDateRange)))
	http.HandleFunc("/history/status", s.CORSMiddleware(s.JWTMiddleware(s.HandleBatchStatus)))
	http.HandleFunc("/history/resend", s.CORSMiddleware(s.JWTMiddleware(s.HandleResend)))
	http.HandleFunc("/history/resend/take", s.CORSMiddleware(s.JWTMiddleware(s.HandleResendTake)))
	http.HandleFunc("/wallet", s.CORSMiddleware(s.JWTMiddleware(s.HandleWallet)))
	http.HandleFunc("/wallet/connect", s.CORSMiddleware(s.JWTMiddleware(s.HandleWalletConnect)))
	http.HandleFunc("/wallet/disconnect", s.CORSMiddleware(s.JWTMiddleware(s.HandleWalletDisconnect)))
	http.HandleFunc("/stats", s.CORSMiddleware(s.JWTMiddleware(s.HandleStats)))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", viper.GetInt("api_port")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if viper.GetBool("use_https") {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.TLS_AES_128_GCM_SHA256,
				tls.TLS_AES_256_GCM_SHA384,
				tls.TLS_CHACHA20_POLY1305_SHA256,
			},
		}
		logger.Infof("starting HTTPS server on %s", server.Addr)
		return server.ListenAndServeTLS(viper.GetString("cert_file"), viper.GetString("key_file"))
	}

	logger.Infof("starting HTTP server on %s", server.Addr)
	return server.ListenAndServe()
}
