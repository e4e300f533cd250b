package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/domain"
	infraBQ "github.com/gracechapel/treasury/internal/infra/bigquery"
	"github.com/gracechapel/treasury/internal/logger"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "member-add":
		runMemberAdd(log)
	case "member-list":
		runMemberList(log)
	case "pending":
		runPending(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Treasury CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  member-add   Register a member and print their API token")
	fmt.Println("  member-list  List registered members")
	fmt.Println("  pending      Show the pending payment backlog")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func commonFlags(fs *flag.FlagSet) (project, dataset *string) {
	project = fs.String("project", os.Getenv("TREASURY_BQ_PROJECT"), "GCP project ID")
	dataset = fs.String("dataset", "treasury", "BigQuery dataset ID")
	return project, dataset
}

func openRepo(log zerolog.Logger, project, dataset string) (*infraBQ.Repository, context.Context, context.CancelFunc) {
	if project == "" {
		log.Fatal().Msg("Error: -project is required (or set TREASURY_BQ_PROJECT)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	repo, err := infraBQ.NewRepository(ctx, project, dataset)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to open BigQuery repository")
	}
	return repo, ctx, cancel
}

func runMemberAdd(log zerolog.Logger) {
	fs := flag.NewFlagSet("member-add", flag.ExitOnError)
	project, dataset := commonFlags(fs)
	name := fs.String("name", "", "Member display name")
	email := fs.String("email", "", "Member email address")
	phone := fs.String("phone", "", "Member phone number (optional)")
	role := fs.String("role", "member", "Role: member, treasurer or pastor")
	fs.Parse(os.Args[2:])

	if *name == "" || *email == "" {
		log.Fatal().Msg("Usage: cli member-add -project ID -name NAME -email EMAIL [-role ROLE]")
	}
	r := domain.Role(*role)
	if !r.Valid() {
		log.Fatal().Str("role", *role).Msg("Unknown role")
	}

	repo, ctx, cancel := openRepo(log, *project, *dataset)
	defer cancel()
	defer repo.Close()

	m := &domain.Member{
		ID:        uuid.NewString(),
		Name:      *name,
		Email:     *email,
		Phone:     *phone,
		Role:      r,
		Active:    true,
		APIToken:  uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.InsertMember(ctx, m); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert member")
	}

	fmt.Printf("Member created.\n  id:    %s\n  role:  %s\n  token: %s\n", m.ID, m.Role, m.APIToken)
}

func runMemberList(log zerolog.Logger) {
	fs := flag.NewFlagSet("member-list", flag.ExitOnError)
	project, dataset := commonFlags(fs)
	fs.Parse(os.Args[2:])

	repo, ctx, cancel := openRepo(log, *project, *dataset)
	defer cancel()
	defer repo.Close()

	members, err := repo.ListMembers(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list members")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tACTIVE")
	for _, m := range members {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", m.ID, m.Name, m.Email, m.Role, m.Active)
	}
	w.Flush()
	fmt.Printf("\n%d member(s)\n", len(members))
}

func runPending(log zerolog.Logger) {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	project, dataset := commonFlags(fs)
	limit := fs.Int("limit", 10, "Maximum number of pending payments to show")
	fs.Parse(os.Args[2:])

	repo, ctx, cancel := openRepo(log, *project, *dataset)
	defer cancel()
	defer repo.Close()

	pending, err := repo.RecentPending(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list pending payments")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMEMBER\tTYPE\tAMOUNT\tSUBMITTED")
	for _, p := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.MemberID, p.Kind, p.Amount, p.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
	fmt.Printf("\n%d pending payment(s)\n", len(pending))
}
