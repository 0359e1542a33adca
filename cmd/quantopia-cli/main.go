package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"quantopia/pkg/quantopia"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: quantopia-cli [-server URL] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                      Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  strategies                   List available strategies\n")
	fmt.Fprintf(os.Stderr, "  data                         List stored price series\n")
	fmt.Fprintf(os.Stderr, "  tasks <fetch|trade>          List tasks of a kind\n")
	fmt.Fprintf(os.Stderr, "  pause <fetch|trade> <id>     Pause a task\n")
	fmt.Fprintf(os.Stderr, "  resume <fetch|trade> <id>    Resume a paused task\n")
	fmt.Fprintf(os.Stderr, "  stop <fetch|trade> <id>      Stop a task\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	server := flag.String("server", "http://localhost:8000", "quantopia server base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	client := quantopia.NewClient(*server)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("quantopia-cli %s\n", version)

	case "strategies":
		err = printStrategies(ctx, client)

	case "data":
		err = printData(ctx, client)

	case "tasks":
		if len(args) < 2 {
			err = fmt.Errorf("tasks requires a kind: fetch or trade")
			break
		}
		err = printTasks(ctx, client, args[1])

	case "pause", "resume", "stop":
		if len(args) < 3 {
			err = fmt.Errorf("%s requires a kind and a task id", args[0])
			break
		}
		err = taskControl(ctx, client, args[0], args[1], args[2])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printStrategies(ctx context.Context, client *quantopia.Client) error {
	infos, err := client.ListStrategies(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%-24s %s\n", info.Name, info.Description)
	}
	return nil
}

func printData(ctx context.Context, client *quantopia.Client) error {
	files, err := client.ListData(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%v  length=%v  trend=%v\n", f["file_id"], f["length"], f["trend"])
	}
	return nil
}

func printTasks(ctx context.Context, client *quantopia.Client, kind string) error {
	tasks, err := client.ListTasks(ctx, kind)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		fmt.Printf("%s  %-6s %-8s %-10s %s\n",
			t.TaskID, t.Symbol, t.Mode, t.Status, t.StartTime)
	}
	return nil
}

func taskControl(ctx context.Context, client *quantopia.Client, action, kind, taskID string) error {
	var err error
	switch action {
	case "pause":
		err = client.PauseTask(ctx, kind, taskID)
	case "resume":
		err = client.ResumeTask(ctx, kind, taskID)
	case "stop":
		err = client.StopTask(ctx, kind, taskID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: ok\n", action, taskID)
	return nil
}
