// Command client connects to a name server and exercises the protocol
// from stdin: a thin line-oriented adapter over internal/clientlib, one
// command per line, for exercising the system from a terminal or a
// script.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"scribe.io/internal/clientlib"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: client <nm_ip> <nm_port> <username>")
		os.Exit(1)
	}
	nmAddr := net.JoinHostPort(os.Args[1], os.Args[2])
	username := os.Args[3]

	c, err := clientlib.Dial(nmAddr, username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	fmt.Printf("connected to %s as %s\n", nmAddr, username)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if err := dispatch(c, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func dispatch(c *clientlib.Client, cmd string, args []string) error {
	switch cmd {
	case "view":
		out, err := c.View(contains(args, "-a"), contains(args, "-l"))
		return printResult(out, err)
	case "list":
		out, err := c.List()
		return printResult(out, err)
	case "create":
		if len(args) != 2 {
			return usage("create <folder> <filename>")
		}
		return c.Create(args[0], args[1])
	case "delete":
		if len(args) != 2 {
			return usage("delete <folder> <filename>")
		}
		return c.Delete(args[0], args[1])
	case "read":
		if len(args) != 2 {
			return usage("read <folder> <filename>")
		}
		out, err := c.Read(args[0], args[1])
		return printResult(out, err)
	case "stream":
		if len(args) != 2 {
			return usage("stream <folder> <filename>")
		}
		out, err := c.Stream(args[0], args[1])
		return printResult(out, err)
	case "write":
		if len(args) < 5 || (len(args)-2)%3 != 0 {
			return usage("write <folder> <filename> (<sentence_idx> <word_idx> <word>)...")
		}
		var edits []clientlib.WordEdit
		for i := 2; i < len(args); i += 3 {
			sIdx, err := strconv.Atoi(args[i])
			if err != nil {
				return err
			}
			wIdx, err := strconv.Atoi(args[i+1])
			if err != nil {
				return err
			}
			edits = append(edits, clientlib.WordEdit{SentenceIndex: sIdx, WordIndex: wIdx, NewWord: args[i+2]})
		}
		return c.Write(args[0], args[1], edits)
	case "etirw":
		if len(args) != 5 {
			return usage("etirw <folder> <filename> <sentence_idx> <word_idx> <word>")
		}
		sIdx, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		wIdx, err := strconv.Atoi(args[3])
		if err != nil {
			return err
		}
		return c.Etirw(args[0], args[1], sIdx, wIdx, args[4])
	case "undo":
		if len(args) != 2 {
			return usage("undo <folder> <filename>")
		}
		return c.Undo(args[0], args[1])
	case "info":
		if len(args) != 2 {
			return usage("info <folder> <filename>")
		}
		out, err := c.Info(args[0], args[1])
		return printResult(out, err)
	case "addaccess":
		if len(args) != 5 {
			return usage("addaccess <folder> <filename> <user> <read:0|1> <write:0|1>")
		}
		return c.AddAccess(args[0], args[1], args[2], args[3] == "1", args[4] == "1")
	case "remaccess":
		if len(args) != 3 {
			return usage("remaccess <folder> <filename> <user>")
		}
		return c.RemAccess(args[0], args[1], args[2])
	case "createfolder":
		if len(args) != 2 {
			return usage("createfolder <parent> <name>")
		}
		return c.CreateFolder(args[0], args[1])
	case "move":
		if len(args) != 3 {
			return usage("move <folder> <filename> <dest_folder>")
		}
		return c.Move(args[0], args[1], args[2])
	case "viewfolder":
		if len(args) != 1 {
			return usage("viewfolder <folder>")
		}
		out, err := c.ViewFolder(args[0])
		return printResult(out, err)
	case "checkpoint":
		if len(args) != 3 {
			return usage("checkpoint <folder> <filename> <tag>")
		}
		return c.Checkpoint(args[0], args[1], args[2])
	case "viewcheckpoint":
		if len(args) != 3 {
			return usage("viewcheckpoint <folder> <filename> <tag>")
		}
		out, err := c.ViewCheckpoint(args[0], args[1], args[2])
		return printResult(out, err)
	case "revert":
		if len(args) != 3 {
			return usage("revert <folder> <filename> <tag>")
		}
		return c.Revert(args[0], args[1], args[2])
	case "listcheckpoints":
		if len(args) != 2 {
			return usage("listcheckpoints <folder> <filename>")
		}
		tags, err := c.ListCheckpoints(args[0], args[1])
		return printResult(strings.Join(tags, "\n"), err)
	case "requestaccess":
		if len(args) != 4 {
			return usage("requestaccess <folder> <filename> <read:0|1> <write:0|1>")
		}
		return c.RequestAccess(args[0], args[1], args[2] == "1", args[3] == "1")
	case "viewrequests":
		out, err := c.ViewRequests()
		return printResult(out, err)
	case "approve":
		if len(args) != 2 {
			return usage("approve <filename> <requester>")
		}
		return c.Approve(args[0], args[1])
	case "deny":
		if len(args) != 2 {
			return usage("deny <filename> <requester>")
		}
		return c.Deny(args[0], args[1])
	case "exec":
		if len(args) != 2 {
			return usage("exec <folder> <filename>")
		}
		out, err := c.Exec(args[0], args[1])
		return printResult(out, err)
	case "quit", "exit":
		os.Exit(0)
		return nil
	default:
		return usage("unknown command " + cmd)
	}
}

func printResult(out string, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func usage(msg string) error {
	return fmt.Errorf("usage: %s", msg)
}

func contains(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
