package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/driftchat/drift/internal/config"
)

var (
	tokenUser string
	tokenName string
	tokenTTL  time.Duration
)

// tokenCmd mints a Bearer token the server's identity middleware
// accepts. Meant for local development and API testing; the signing
// secret comes from the same configuration the server reads.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an identity token for local development",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
			os.Exit(1)
		}

		now := time.Now()
		claims := jwt.MapClaims{
			"sub":  tokenUser,
			"name": tokenName,
			"iat":  now.Unix(),
			"exp":  now.Add(tokenTTL).Unix(),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.AuthSecret))
		if err != nil {
			fmt.Fprintf(os.Stderr, "signing token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(signed)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID the token identifies")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name for presence data")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
