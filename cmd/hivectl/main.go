// hivectl is the operator CLI for a running agenthive instance.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AGENTHIVE/internal/types"
)

func main() {
	host := flag.String("host", "http://localhost:8080", "Control API base URL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch args[0] {
	case "status":
		err = getJSON(client, *host+"/api/status")
	case "agents":
		err = getJSON(client, *host+"/api/agents")
	case "policies":
		err = getJSON(client, *host+"/api/policies")
	case "sla":
		err = getJSON(client, *host+"/api/sla")
	case "violations":
		err = getJSON(client, *host+"/api/sla/violations")
	case "cycles":
		err = getJSON(client, *host+"/api/hootl/history")
	case "submit":
		err = submit(client, *host, args[1:])
	case "cancel":
		if len(args) < 2 {
			err = fmt.Errorf("cancel needs a task id")
		} else {
			err = del(client, *host+"/api/tasks/"+args[1])
		}
	case "deregister":
		if len(args) < 2 {
			err = fmt.Errorf("deregister needs an agent id")
		} else {
			err = del(client, *host+"/api/agents/"+args[1])
		}
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: hivectl [-host URL] <command>

Commands:
  status                          Show orchestrator status
  agents                          List registered agents
  policies                        List priority policies
  sla                             List SLA definitions
  violations                      List SLA violations
  cycles                          Show HOOTL cycle history
  submit <name> [cap,cap] [k=v..] Submit a task
  cancel <task-id>                Cancel a task
  deregister <agent-id>           Deregister an agent`)
}

func submit(client *http.Client, host string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("submit needs a task name")
	}

	req := types.SubmitTaskRequest{
		Name:                 args[0],
		RequiredCapabilities: []string{"task_execution"},
		Parameters:           map[string]interface{}{},
	}
	if len(args) > 1 {
		req.RequiredCapabilities = strings.Split(args[1], ",")
	}
	var params []string
	if len(args) > 2 {
		params = args[2:]
	}
	for _, kv := range params {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("parameter %q is not key=value", kv)
		}
		var value interface{} = parts[1]
		var num float64
		if _, err := fmt.Sscanf(parts[1], "%g", &num); err == nil {
			value = num
		}
		req.Parameters[parts[0]] = value
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := client.Post(host+"/api/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func getJSON(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func del(client *http.Client, url string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
