// Command sim-approve is the reference approver client, a terminal-prompt
// equivalent of the original system's Telegram-poll approver that exercises
// the same wire contract end to end. It is not part of sim's own trust
// boundary: it runs as an ordinary approve_group member, connects to each
// rendezvous socket it finds, and prompts the operator.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/localauth/sim/internal/protocol"
)

func main() {
	var sockDir string

	root := &cobra.Command{
		Use:   "sim-approve",
		Short: "Connect to pending sim rendezvous sockets and approve or reject them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(sockDir, os.Stdin, os.Stdout)
		},
	}
	root.Flags().StringVar(&sockDir, "sock-dir", "/run/sim", "Directory sim creates rendezvous sockets in")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sim-approve: %v\n", err)
		os.Exit(1)
	}
}

func run(sockDir string, in *os.File, out *os.File) error {
	sockets, err := listSockets(sockDir)
	if err != nil {
		return fmt.Errorf("sim-approve: %w", err)
	}
	if len(sockets) == 0 {
		fmt.Fprintln(out, "no pending requests")
		return nil
	}

	// sim keeps no durable audit log, so this session id exists only to let
	// an operator correlate the decisions printed below with syslog output
	// from the same terminal session.
	session := uuid.New()
	fmt.Fprintf(out, "sim-approve session %s\n", session)

	scanner := bufio.NewScanner(in)
	for _, path := range sockets {
		if err := handleOne(path, session, scanner, out); err != nil {
			fmt.Fprintf(out, "skipping %s: %v\n", filepath.Base(path), err)
		}
	}
	return nil
}

// listSockets returns every SOCK_SEQPACKET file in dir, mirroring the
// original bot's std::fs::read_dir + is_socket() filter.
func listSockets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSocket != 0 {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func handleOne(path string, session uuid.UUID, scanner *bufio.Scanner, out *os.File) error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	buf := make([]byte, protocol.MaxReplySize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return fmt.Errorf("receive request: %w", err)
	}
	req, err := protocol.UnmarshalRequest(buf[:n])
	if err != nil {
		return fmt.Errorf("parse request: %w", err)
	}

	fmt.Fprintf(out, "Host: %s\nUser: %s\nCwd: %s\nCommand: %s %s\n",
		req.Host, req.User, req.Command.Cwd, req.Command.Command, strings.Join(req.Command.Args, " "))
	if req.Justification != "" {
		fmt.Fprintf(out, "Justification: %s\n", req.Justification)
	}

	resp := promptDecision(req, scanner, out)
	fmt.Fprintf(out, "[%s] %s -> approved=%v comment=%q\n", session, req.ID, resp.Approved, resp.Comment)

	payload := protocol.MarshalResponse(resp)
	if _, err := unix.Write(fd, payload); err != nil {
		return fmt.Errorf("send response: %w", err)
	}
	return nil
}

// promptDecision asks the operator to approve, reject, or reject-with-a-
// comment. An empty or unrecognized line is treated as a plain rejection
// rather than retried — the handshake is a single send-reply round trip
// with no in-band retry.
func promptDecision(req *protocol.ApprovalRequest, scanner *bufio.Scanner, out *os.File) *protocol.ApprovalResponse {
	fmt.Fprint(out, "Approve? [y/N/<reason>]: ")
	line := ""
	if scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
	}

	switch strings.ToLower(line) {
	case "y", "yes":
		return &protocol.ApprovalResponse{ID: req.ID, Approved: true, HasApproved: true}
	case "", "n", "no":
		return &protocol.ApprovalResponse{ID: req.ID, Approved: false, HasApproved: true}
	default:
		return &protocol.ApprovalResponse{ID: req.ID, Approved: true, HasApproved: true, Comment: line}
	}
}
