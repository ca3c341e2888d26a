// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"transaction-certification-service/config"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "txctl",
		Short: "Transaction Certification Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if apiURL == "" {
				apiURL = os.Getenv("TXCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set TXCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(initCACmd())
	rootCmd.AddCommand(caCmd())
	rootCmd.AddCommand(rotateCACmd())
	rootCmd.AddCommand(rotateUserCmd())
	rootCmd.AddCommand(verifyCertCmd())
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("txctl version %s\n", version)
		},
	}
}

// initCACmd は認証局の初期化コマンド。
// フラグ未指定の項目はCA_NAME等の環境変数設定にフォールバックする。
func initCACmd() *cobra.Command {
	var name, org, country string
	cmd := &cobra.Command{
		Use:   "init-ca",
		Short: "Establish the certificate authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set TXCTL_API_URL)")
			}
			cfg := config.Load()
			if name == "" {
				name = cfg.CAName
			}
			if org == "" {
				org = cfg.CAOrganization
			}
			if country == "" {
				country = cfg.CACountry
			}

			payload, err := json.Marshal(map[string]string{
				"name":         name,
				"organization": org,
				"country":      country,
			})
			if err != nil {
				return err
			}

			resp, err := httpClient.Post(apiURL+"/v1/ca", "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode != http.StatusCreated {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Initialized CA %q (fingerprint: %s)\n", name, result["fingerprint"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "CA common name (defaults to CA_NAME)")
	cmd.Flags().StringVar(&org, "org", "", "CA organization (defaults to CA_ORGANIZATION)")
	cmd.Flags().StringVar(&country, "country", "", "2-letter country code (defaults to CA_COUNTRY)")
	return cmd
}

// caCmd は現在のCAメタデータの取得コマンド。
func caCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ca",
		Short: "Show the active certificate authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set TXCTL_API_URL)")
			}

			resp, err := httpClient.Get(apiURL + "/v1/ca")
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Name:         %s\n", result["name"])
				fmt.Printf("Organization: %s\n", result["organization"])
				fmt.Printf("Country:      %s\n", result["country"])
				fmt.Printf("Fingerprint:  %s\n", result["fingerprint"])
				fmt.Printf("Established:  %s\n", result["established_at"])
			}
			return nil
		},
	}
}

// rotateCACmd はCA鍵のローテーションコマンド。
func rotateCACmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rotate-ca",
		Short: "Rotate the CA key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set TXCTL_API_URL)")
			}

			payload, err := json.Marshal(map[string]bool{"force": force})
			if err != nil {
				return err
			}
			resp, err := httpClient.Post(apiURL+"/v1/ca/rotate", "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Rotated CA key (new fingerprint: %s)\n", result["fingerprint"])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rotate even if the key is not due")
	return cmd
}

// rotateUserCmd は口座鍵のローテーションコマンド。
func rotateUserCmd() *cobra.Command {
	var accountID string
	var force bool
	cmd := &cobra.Command{
		Use:   "rotate-user",
		Short: "Rotate the key pair of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if accountID == "" {
				return fmt.Errorf("--account is required")
			}
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set TXCTL_API_URL)")
			}

			payload, err := json.Marshal(map[string]bool{"force": force})
			if err != nil {
				return err
			}
			url := fmt.Sprintf("%s/v1/accounts/%s/keys/rotate", apiURL, accountID)
			resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Printf("Rotated key for account %q (key version: %.0f)\n", accountID, result["key_version"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (required)")
	cmd.Flags().BoolVar(&force, "force", false, "Rotate even if the key is not due")
	cmd.MarkFlagRequired("account")
	return cmd
}

// verifyCertCmd は取引証明書の検証コマンド。
func verifyCertCmd() *cobra.Command {
	var transactionID string
	cmd := &cobra.Command{
		Use:   "verify-cert",
		Short: "Verify the certificate of a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transactionID == "" {
				return fmt.Errorf("--tx is required")
			}
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set TXCTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/transactions/%s/certificate/verify", apiURL, transactionID)
			resp, err := httpClient.Get(url)
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Valid bool `json:"valid"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			if result.Valid {
				fmt.Printf("Certificate for transaction %q is valid.\n", transactionID)
				return nil
			}
			fmt.Printf("Certificate for transaction %q is NOT valid.\n", transactionID)
			os.Exit(2)
			return nil
		},
	}
	cmd.Flags().StringVar(&transactionID, "tx", "", "Transaction ID (required)")
	cmd.MarkFlagRequired("tx")
	return cmd
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
