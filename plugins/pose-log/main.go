// Command pose-log is a poseview plugin that appends confirmed poses to a
// JSON lines file.
//
// Actions:
//
//	append  append {"time","pose","user","params"} to config.file
//	echo    return the request as the response data
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/poseview/internal/plugin"
)

// Config is the binding config of the append action.
type Config struct {
	File string `json:"file"`
}

type entry struct {
	Time   time.Time       `json:"time"`
	Pose   string          `json:"pose"`
	User   int             `json:"user"`
	Params json.RawMessage `json:"params,omitempty"`
}

func main() {
	var req plugin.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		respond(nil, fmt.Errorf("failed to decode request: %w", err))
		return
	}

	switch req.Action {
	case "append":
		respond(nil, appendEntry(&req))
	case "echo":
		data, err := json.Marshal(req)
		respond(data, err)
	default:
		respond(nil, fmt.Errorf("unknown action: %s", req.Action))
	}
}

func appendEntry(req *plugin.Request) error {
	var c Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &c); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if c.File == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.File = filepath.Join(home, ".poseview", "poses.jsonl")
	}

	line, err := json.Marshal(entry{
		Time:   time.Now().UTC(),
		Pose:   req.Pose,
		User:   req.UserID,
		Params: req.Params,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(c.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func respond(data json.RawMessage, err error) {
	resp := plugin.Response{Success: err == nil, Data: data}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
