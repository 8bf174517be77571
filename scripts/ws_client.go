// Package main runs a demo WebSocket client that starts a run and prints
// its improvement events. With -webhook-addr it also receives the signed
// snapshot webhooks of the server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"

	"vrpspd/internal/snapshot"
)

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func main() {
	name := flag.String("instance", "CMT1X", "instance name resolved by the server")
	budget := flag.Int64("budget-ms", 10000, "time budget in milliseconds")
	hookAddr := flag.String("webhook-addr", "", "listen address for snapshot webhooks, e.g. :9090")
	hookSecret := flag.String("webhook-secret", os.Getenv("SNAPSHOT_WEBHOOK_SECRET"), "shared webhook secret")
	flag.Parse()

	if *hookAddr != "" {
		go func() {
			h := snapshot.WebhookHandler(*hookSecret, func(evt snapshot.WebhookEvent) {
				log.Printf("HOOK <- %s round=%d total=%.2f", evt.Type, evt.Data.Round, evt.Data.TotalCost)
			})
			log.Printf("webhook receiver on %s", *hookAddr)
			if err := http.ListenAndServe(*hookAddr, h); err != nil {
				log.Printf("webhook receiver: %v", err)
			}
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	body, _ := json.Marshal(map[string]any{"instanceName": *name, "timeBudgetMs": *budget})
	resp, err := http.Post(base+"/v1/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("solve: %s", resp.Status)
	}
	var solveResp struct {
		Run struct {
			ID string `json:"id"`
		} `json:"run"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&solveResp); err != nil {
		log.Fatal(err)
	}
	runID := solveResp.Run.ID
	log.Printf("Run ID: %s", runID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + runID + "/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		var evt event
		if err := c.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			return
		}
		switch evt.Type {
		case "snapshot":
			log.Printf("WS <- %s round=%v best=%v clique=%v", evt.Data["kind"], evt.Data["round"], evt.Data["bestCost"], evt.Data["cliqueSize"])
		default:
			log.Printf("WS <- %s: %v", evt.Type, evt.Data)
		}
	}
}
