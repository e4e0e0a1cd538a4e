package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

func dialDaemon(path string) (net.Conn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w (is `headphoned daemon` running?)", err)
	}
	return conn, nil
}

func ipcCall(path string, req IPCRequest) (IPCResponse, error) {
	conn, err := dialDaemon(path)
	if err != nil {
		return IPCResponse{}, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func runStatus(path string, out io.Writer) error {
	resp, err := ipcCall(path, IPCRequest{Command: "status"})
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(resp.Status)
}

func runConstants(path string, out io.Writer) error {
	resp, err := ipcCall(path, IPCRequest{Command: "constants"})
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(resp.Constants)
}

// runWatch prints the current status and then every change until the
// daemon closes the stream.
func runWatch(path string, out io.Writer) error {
	conn, err := dialDaemon(path)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(IPCRequest{Command: "subscribe"}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(out)
	for {
		var resp IPCResponse
		if err := dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}
