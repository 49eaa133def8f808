// Command tankctl is the operator CLI for a running tankd instance.
//
// Usage:
//
//	tankctl status                         Print the current snapshot
//	tankctl setpoint --value 3.0           Change a loop setpoint
//	tankctl pid --kc -1.5 --taui 8         Retune a loop
//	tankctl inlet --value 1.2              Set a constant inlet flow
//	tankctl inlet --mode brownian ...      Switch to a random-walk inlet
//	tankctl pause | resume | reset         Control the run
//	tankctl watch                          Stream live snapshots to stdout
//	tankctl runs                           List persisted runs
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"nhooyr.io/websocket"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		cmdStatus(os.Args[2:])
	case "setpoint":
		cmdSetpoint(os.Args[2:])
	case "pid":
		cmdPID(os.Args[2:])
	case "inlet":
		cmdInlet(os.Args[2:])
	case "reset":
		cmdSimple(os.Args[2:], "reset", "/api/reset")
	case "pause":
		cmdSimple(os.Args[2:], "pause", "/api/pause")
	case "resume":
		cmdSimple(os.Args[2:], "resume", "/api/resume")
	case "watch":
		cmdWatch(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tankctl status                              Print the current snapshot")
	fmt.Fprintln(os.Stderr, "  tankctl setpoint --value V [--index N]      Change a loop setpoint")
	fmt.Fprintln(os.Stderr, "  tankctl pid --kc V [--taui V] [--taud V]    Retune a loop")
	fmt.Fprintln(os.Stderr, "  tankctl inlet --value V                     Set a constant inlet flow")
	fmt.Fprintln(os.Stderr, "  tankctl inlet --mode brownian --min V --max V [--seed N]")
	fmt.Fprintln(os.Stderr, "  tankctl pause | resume | reset              Control the run")
	fmt.Fprintln(os.Stderr, "  tankctl watch                               Stream live snapshots")
	fmt.Fprintln(os.Stderr, "  tankctl runs                                List persisted runs")
	fmt.Fprintln(os.Stderr, "\nAll commands accept --server (default http://localhost:8000).")
}

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("server", "http://localhost:8000", "tankd base URL")
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	body := getJSON(*server + "/api/state")
	var snap struct {
		Time          float64 `json:"time"`
		Level         float64 `json:"level"`
		Setpoint      float64 `json:"setpoint"`
		InletFlow     float64 `json:"inlet_flow"`
		ValvePosition float64 `json:"valve_position"`
		Error         float64 `json:"error"`
		Output        float64 `json:"output"`
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		fatalf("parsing state: %v", err)
	}
	fmt.Printf("time:      %10.2f s\n", snap.Time)
	fmt.Printf("level:     %10.4f m\n", snap.Level)
	fmt.Printf("setpoint:  %10.4f m\n", snap.Setpoint)
	fmt.Printf("inlet:     %10.4f m3/s\n", snap.InletFlow)
	fmt.Printf("valve:     %10.4f\n", snap.ValvePosition)
	fmt.Printf("error:     %10.4f m\n", snap.Error)
}

func cmdSetpoint(args []string) {
	fs := flag.NewFlagSet("setpoint", flag.ExitOnError)
	server := serverFlag(fs)
	index := fs.Int("index", 0, "controller index")
	value := fs.Float64("value", -1, "setpoint in meters (required)")
	fs.Parse(args)

	if *value < 0 {
		fatalf("--value is required and must be non-negative")
	}
	postJSON(*server+"/api/setpoint", map[string]interface{}{
		"index": *index,
		"value": *value,
	})
	fmt.Printf("setpoint %d set to %g\n", *index, *value)
}

func cmdPID(args []string) {
	fs := flag.NewFlagSet("pid", flag.ExitOnError)
	server := serverFlag(fs)
	index := fs.Int("index", 0, "controller index")
	kc := fs.Float64("kc", 0, "controller gain (required)")
	taui := fs.Float64("taui", 0, "integral time in seconds")
	taud := fs.Float64("taud", 0, "derivative time in seconds")
	fs.Parse(args)

	if *kc == 0 {
		fatalf("--kc is required and must be non-zero")
	}
	postJSON(*server+"/api/pid", map[string]interface{}{
		"index": *index,
		"kc":    *kc,
		"tau_i": *taui,
		"tau_d": *taud,
	})
	fmt.Printf("controller %d gains set to kc=%g tau_i=%g tau_d=%g\n", *index, *kc, *taui, *taud)
}

func cmdInlet(args []string) {
	fs := flag.NewFlagSet("inlet", flag.ExitOnError)
	server := serverFlag(fs)
	value := fs.Float64("value", -1, "constant inlet flow in m3/s")
	mode := fs.String("mode", "", "inlet mode: constant or brownian")
	min := fs.Float64("min", 0, "brownian lower bound")
	max := fs.Float64("max", 0, "brownian upper bound")
	seed := fs.Int64("seed", 0, "brownian RNG seed (0 keeps the current seed)")
	fs.Parse(args)

	if *mode != "" {
		postJSON(*server+"/api/inlet_mode", map[string]interface{}{
			"mode":     *mode,
			"min_flow": *min,
			"max_flow": *max,
			"seed":     *seed,
		})
		fmt.Printf("inlet mode set to %s\n", *mode)
		return
	}
	if *value < 0 {
		fatalf("either --mode or a non-negative --value is required")
	}
	postJSON(*server+"/api/inlet_flow", map[string]interface{}{"value": *value})
	fmt.Printf("inlet flow set to %g\n", *value)
}

func cmdSimple(args []string, name, path string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	body := postJSON(*server+path, map[string]interface{}{})
	var resp map[string]string
	if err := json.Unmarshal(body, &resp); err == nil && resp["message"] != "" {
		fmt.Println(resp["message"])
		if resp["run_id"] != "" {
			fmt.Printf("new run: %s\n", resp["run_id"])
		}
	}
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		fatalf("dialing %s: %v", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", wsURL)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("connection closed: %v", err)
		}
		var evt struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &evt); err != nil || evt.Type != "state" {
			continue
		}
		var snap struct {
			Time          float64 `json:"time"`
			Level         float64 `json:"level"`
			Setpoint      float64 `json:"setpoint"`
			InletFlow     float64 `json:"inlet_flow"`
			ValvePosition float64 `json:"valve_position"`
		}
		if err := json.Unmarshal(evt.Payload, &snap); err != nil {
			continue
		}
		fmt.Printf("t=%-10.1f level=%-8.4f sp=%-8.4f qin=%-8.4f valve=%-8.4f\n",
			snap.Time, snap.Level, snap.Setpoint, snap.InletFlow, snap.ValvePosition)
	}
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	body := getJSON(*server + "/api/runs")
	var runs []struct {
		ID         string  `json:"id"`
		StartedAt  string  `json:"started_at"`
		FinishedAt *string `json:"finished_at"`
		Status     string  `json:"status"`
	}
	if err := json.Unmarshal(body, &runs); err != nil {
		fatalf("parsing runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return
	}
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = *r.FinishedAt
		}
		fmt.Printf("%s  %-8s  started %s  finished %s\n", r.ID, r.Status, r.StartedAt, finished)
	}
}

func getJSON(url string) []byte {
	resp, err := http.Get(url)
	if err != nil {
		fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatalf("GET %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return body
}

func postJSON(url string, payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fatalf("POST %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return body
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
