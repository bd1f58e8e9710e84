// Command staff-token mints a bearer token for a staff member, for local
// testing of the register endpoints.
//
//	staff-token -staff alice -role MANAGER -ttl 60
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/iliyamo/clubdesk/internal/middleware"
	"github.com/iliyamo/clubdesk/internal/utils"
)

func main() {
	_ = godotenv.Load()

	staff := flag.String("staff", "", "staff id (token subject)")
	role := flag.String("role", middleware.RoleStaff, "STAFF or MANAGER")
	ttl := flag.Int("ttl", 720, "lifetime in minutes")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(2)
	}
	if *role != middleware.RoleStaff && *role != middleware.RoleManager {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(secret, *staff, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("%s\n# expires %s\n", tok.Token, tok.Exp.UTC().Format("2006-01-02 15:04:05Z"))
}
