package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// volatileKeys change on every response and are masked before bodies are compared.
var volatileKeys = map[string]bool{
	"processing_time_ms": true,
	"request_id":         true,
	"generatedAt":        true,
	"generated_at":       true,
	"goroutines":         true,
}

type shadowTarget struct {
	Method   string `mapstructure:"method" json:"method"`
	Path     string `mapstructure:"path" json:"path"`
	Critical bool   `mapstructure:"critical" json:"critical"`
}

type shadowResult struct {
	Target           shadowTarget  `json:"target"`
	LegacyStatus     int           `json:"legacyStatus"`
	CandidateStatus  int           `json:"candidateStatus"`
	StatusMatch      bool          `json:"statusMatch"`
	BodyMatch        bool          `json:"bodyMatch"`
	Error            string        `json:"error,omitempty"`
	LegacyLatency    time.Duration `json:"legacyLatency"`
	CandidateLatency time.Duration `json:"candidateLatency"`
}

func (r shadowResult) verdict() string {
	switch {
	case r.Error != "":
		return "ERROR"
	case !r.StatusMatch || !r.BodyMatch:
		return "DIFF"
	default:
		return "OK"
	}
}

func (r shadowResult) breaking() bool {
	return r.Target.Critical && r.verdict() != "OK"
}

func shadowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shadow",
		Short:   "Replay read-only requests against two deployments and diff the responses",
		Example: `  portalctl shadow --targets configs/shadow_targets.yaml --legacy http://legacy:3000 --candidate http://localhost:8080 --token $TOKEN`,
		RunE:    runShadow,
	}
	f := cmd.Flags()
	f.String("targets", "configs/shadow_targets.yaml", "Target list (yaml or json)")
	f.String("legacy", "http://localhost:3000", "Base URL of the deployment being replaced")
	f.String("candidate", "http://localhost:8080", "Base URL of the deployment under test")
	f.String("token", "", "Bearer token sent to both deployments")
	f.Duration("timeout", 5*time.Second, "Per-request timeout")
	return cmd
}

func runShadow(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)

	targets, err := loadShadowTargets(v.GetString("targets"))
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: v.GetDuration("timeout")}
	token := v.GetString("token")
	results := make([]shadowResult, 0, len(targets))
	breaking := 0
	for _, tgt := range targets {
		res := compareShadowTarget(client, v.GetString("legacy"), v.GetString("candidate"), token, tgt)
		if res.breaking() {
			breaking++
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if v.GetString("output") == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RESULT\tMETHOD\tPATH\tLEGACY\tCANDIDATE\tCRITICAL\tDETAIL")
		for _, res := range results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d (%s)\t%d (%s)\t%t\t%s\n", res.verdict(), res.Target.Method, res.Target.Path,
				res.LegacyStatus, res.LegacyLatency.Round(time.Millisecond), res.CandidateStatus, res.CandidateLatency.Round(time.Millisecond),
				res.Target.Critical, res.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d targets, %d breaking\n", len(results), breaking)
	}

	if breaking > 0 {
		return fmt.Errorf("%d critical targets differ", breaking)
	}
	return nil
}

func loadShadowTargets(path string) ([]shadowTarget, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	var targets []shadowTarget
	if err := v.UnmarshalKey("targets", &targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	for i := range targets {
		targets[i].Method = strings.ToUpper(strings.TrimSpace(targets[i].Method))
		if targets[i].Method == "" {
			targets[i].Method = http.MethodGet
		}
		if !strings.HasPrefix(targets[i].Path, "/") {
			targets[i].Path = "/" + targets[i].Path
		}
	}
	return targets, nil
}

func compareShadowTarget(client *http.Client, legacyBase, candidateBase, token string, tgt shadowTarget) shadowResult {
	res := shadowResult{Target: tgt}

	legacyStatus, legacyBody, legacyDur, err := shadowRequest(client, legacyBase, token, tgt)
	if err != nil {
		res.Error = fmt.Sprintf("legacy: %v", err)
		return res
	}
	candidateStatus, candidateBody, candidateDur, err := shadowRequest(client, candidateBase, token, tgt)
	if err != nil {
		res.Error = fmt.Sprintf("candidate: %v", err)
		return res
	}

	res.LegacyStatus, res.CandidateStatus = legacyStatus, candidateStatus
	res.LegacyLatency, res.CandidateLatency = legacyDur, candidateDur
	res.StatusMatch = legacyStatus == candidateStatus
	res.BodyMatch = bodiesEqual(legacyBody, candidateBody)
	return res
}

func shadowRequest(client *http.Client, base, token string, tgt shadowTarget) (int, []byte, time.Duration, error) {
	if client == nil {
		return 0, nil, 0, errors.New("nil client")
	}
	req, err := http.NewRequest(tgt.Method, strings.TrimRight(base, "/")+tgt.Path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	return reflect.DeepEqual(normalizeJSON(aj), normalizeJSON(bj))
}

func normalizeJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if volatileKeys[k] {
				delete(val, k)
				continue
			}
			val[k] = normalizeJSON(child)
		}
		return val
	case []interface{}:
		for i, child := range val {
			val[i] = normalizeJSON(child)
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return val
	}
}
