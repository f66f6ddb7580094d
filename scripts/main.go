package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mspfin/billing-engine/scripts/internal"
)

// Command represents a script that can be run
type Command struct {
	Name        string
	Description string
	Run         func() error
}

var commands = []Command{
	{
		Name:        "import-tax-rates",
		Description: "Create local tax rates for a company from a JSON file",
		Run:         internal.ImportTaxRates,
	},
	{
		Name:        "run-billing",
		Description: "Bill every due recurring invoice once",
		Run:         internal.RunRecurringBilling,
	},
}

func main() {
	var (
		listCommands bool
		cmdName      string
		companyID    string
		userID       string
		taxRatesFile string
		asOf         string
	)

	flag.BoolVar(&listCommands, "list", false, "List all available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.StringVar(&companyID, "company-id", "", "Company ID for operations")
	flag.StringVar(&userID, "user-id", "", "User ID recorded on audit entries")
	flag.StringVar(&taxRatesFile, "tax-rates-file", "", "Path to tax rates JSON file")
	flag.StringVar(&asOf, "as-of", "", "Billing date as YYYY-MM-DD")

	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-20s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	if cmdName == "" {
		log.Fatal("Please specify a command to run using -cmd flag. Use -list to see available commands.")
	}

	// Set command-specific environment variables
	if companyID != "" {
		os.Setenv("COMPANY_ID", companyID)
	}
	if userID != "" {
		os.Setenv("USER_ID", userID)
	}
	if taxRatesFile != "" {
		os.Setenv("TAX_RATES_FILE", taxRatesFile)
	}
	if asOf != "" {
		os.Setenv("AS_OF", asOf)
	}

	for _, cmd := range commands {
		if cmd.Name == cmdName {
			if err := cmd.Run(); err != nil {
				log.Fatalf("Error running command %s: %v", cmdName, err)
			}
			return
		}
	}

	log.Fatalf("Unknown command: %s. Use -list to see available commands.", cmdName)
}
