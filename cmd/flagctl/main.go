// flagctl manages feature flags in redis from the command line.
//
//	flagctl list
//	flagctl get <name>
//	flagctl enable <name> [description]
//	flagctl disable <name> [description]
//	flagctl delete <name>
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/astraops/paygate/internal/config"
	"github.com/astraops/paygate/internal/feature"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	flags := feature.New(rdb, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx, flags, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *feature.Service, cmd string, args []string) error {
	switch cmd {
	case "list":
		all, err := flags.List(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("no flags set")
			return nil
		}
		for _, f := range all {
			state := "disabled"
			if f.Enabled {
				state = "enabled"
			}
			fmt.Printf("%-30s %-9s %s\n", f.Name, state, f.Description)
		}
		return nil
	case "get":
		name, err := flagName(args)
		if err != nil {
			return err
		}
		f, err := flags.Get(ctx, name)
		if err != nil {
			return err
		}
		if f == nil {
			return fmt.Errorf("flag %q does not exist", name)
		}
		fmt.Printf("name:        %s\n", f.Name)
		fmt.Printf("enabled:     %t\n", f.Enabled)
		fmt.Printf("description: %s\n", f.Description)
		if !f.UpdatedAt.IsZero() {
			fmt.Printf("updated_at:  %s\n", f.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	case "enable", "disable":
		name, err := flagName(args)
		if err != nil {
			return err
		}
		description := strings.Join(args[1:], " ")
		if err := flags.Set(ctx, name, cmd == "enable", description); err != nil {
			return err
		}
		fmt.Printf("flag %q %sd\n", name, cmd)
		return nil
	case "delete":
		name, err := flagName(args)
		if err != nil {
			return err
		}
		if err := flags.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Printf("flag %q deleted\n", name)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func flagName(args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("flag name is required")
	}
	return strings.TrimSpace(args[0]), nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: flagctl <command> [args]

commands:
  list                          show all flags
  get <name>                    show one flag
  enable <name> [description]   turn a flag on
  disable <name> [description]  turn a flag off
  delete <name>                 remove a flag`)
}
