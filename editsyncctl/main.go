package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/planfold/editsync/editsync"
)

const EditsyncCtlVersion = "0.0.1"

const DefaultApiUrl = "https://api.planfold.com"
const DefaultFeedUrl = "wss://feed.planfold.com"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(
		`Planfold editor sync control.

The default urls are:
    api_url: %s
    feed_url: %s

Usage:
    editsyncctl login [--api_url=<api_url>] --user_auth=<user_auth> [--password=<password>]
    editsyncctl get [--api_url=<api_url>] --jwt=<jwt> --document=<document_id>
    editsyncctl set [--api_url=<api_url>] [--feed_url=<feed_url>] --jwt=<jwt>
        --document=<document_id> <path> <value>
    editsyncctl delete [--api_url=<api_url>] [--feed_url=<feed_url>] --jwt=<jwt>
        --document=<document_id> <path>
    editsyncctl append [--api_url=<api_url>] [--feed_url=<feed_url>] --jwt=<jwt>
        --document=<document_id> <path> <value>

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --api_url=<api_url>
    --feed_url=<feed_url>
    --jwt=<jwt>                Session token from login.
    --user_auth=<user_auth>
    --password=<password>
    --document=<document_id>`,
		DefaultApiUrl,
		DefaultFeedUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], EditsyncCtlVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		getDocument(opts)
	} else if set_, _ := opts.Bool("set"); set_ {
		path, _ := opts.String("<path>")
		value, _ := opts.String("<value>")
		edit, description, err := editsync.SetFieldEdit(path, parseValue(value))
		if err != nil {
			Err.Fatalf("Bad value: %s", err)
		}
		applyEdit(opts, edit, description)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		path, _ := opts.String("<path>")
		edit, description := editsync.DeleteFieldEdit(path)
		applyEdit(opts, edit, description)
	} else if append_, _ := opts.Bool("append"); append_ {
		path, _ := opts.String("<path>")
		value, _ := opts.String("<value>")
		edit, description, err := editsync.AppendFieldEdit(path, parseValue(value))
		if err != nil {
			Err.Fatalf("Bad value: %s", err)
		}
		applyEdit(opts, edit, description)
	}
}

func apiUrl(opts docopt.Opts) string {
	if apiUrlAny := opts["--api_url"]; apiUrlAny != nil {
		return apiUrlAny.(string)
	}
	return DefaultApiUrl
}

func feedUrl(opts docopt.Opts) (string, bool) {
	if feedUrlAny := opts["--feed_url"]; feedUrlAny != nil {
		return feedUrlAny.(string), true
	}
	return "", false
}

// json values pass through, everything else is a string
func parseValue(value string) any {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		return parsed
	}
	return value
}

func login(opts docopt.Opts) {
	userAuth, _ := opts.String("--user_auth")

	var password string
	if passwordAny := opts["--password"]; passwordAny != nil {
		password = passwordAny.(string)
	} else {
		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			Err.Fatalf("Could not read password: %s", err)
		}
		password = string(passwordBytes)
	}

	api := editsync.NewPlanfoldApi(apiUrl(opts))
	defer api.Close()

	result, err := api.AuthLoginWithPasswordSync(&editsync.AuthLoginWithPasswordArgs{
		UserAuth: userAuth,
		Password: password,
	})
	if err != nil {
		Err.Fatalf("Login error: %s", err)
	}
	if result.Error != nil {
		Err.Fatalf("Login error: %s", result.Error.Message)
	}

	Out.Printf("%s", result.ByJwt)
}

func getDocument(opts docopt.Opts) {
	byJwt, _ := opts.String("--jwt")
	documentIdStr, _ := opts.String("--document")
	documentId, err := editsync.ParseId(documentIdStr)
	if err != nil {
		Err.Fatalf("Bad document id: %s", err)
	}

	api := editsync.NewPlanfoldApi(apiUrl(opts))
	defer api.Close()
	api.SetByJwt(byJwt)

	result, err := api.GetDocumentSync(documentId)
	if err != nil {
		Err.Fatalf("Get error: %s", err)
	}
	if result.Error != nil {
		Err.Fatalf("Get error: %s", result.Error.Message)
	}

	documentJson, err := json.MarshalIndent(result.Document, "", "    ")
	if err != nil {
		Err.Fatalf("Could not encode document: %s", err)
	}
	Out.Printf("%s", documentJson)
}

func applyEdit(opts docopt.Opts, edit editsync.EditFunction, description *editsync.EditDescription) {
	byJwt, _ := opts.String("--jwt")
	documentIdStr, _ := opts.String("--document")
	documentId, err := editsync.ParseId(documentIdStr)
	if err != nil {
		Err.Fatalf("Bad document id: %s", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := editsync.NewPlanfoldApiWithContext(cancelCtx, apiUrl(opts))
	defer api.Close()
	api.SetByJwt(byJwt)

	auth := &editsync.SessionAuth{
		ByJwt:      byJwt,
		AppVersion: EditsyncCtlVersion,
	}

	var feed *editsync.DocumentFeed
	if url, ok := feedUrl(opts); ok {
		feed = editsync.NewDocumentFeedWithDefaults(cancelCtx, url, documentId, auth)
		defer feed.Close()
		feed.AddRemoteVersionCallback(func(version int64) {
			Err.Printf("remote version: %d", version)
		})
	}

	sync := editsync.NewDocumentSync(
		cancelCtx,
		api,
		documentId,
		auth,
		editsync.DefaultDocumentSyncSettings(),
	)
	defer sync.Close()

	sync.AddSyncStatusCallback(func(status editsync.SyncStatus) {
		Err.Printf("status: %s", status)
	})
	sync.AddSaveErrorCallback(func(description *editsync.EditDescription, err error) {
		Err.Printf("save error for %s %s: %s", description.Op, description.Path, err)
	})

	if err := sync.Load(); err != nil {
		Err.Fatalf("Load error: %s", err)
	}

	if err := sync.ApplyEdit(edit, description); err != nil {
		Err.Fatalf("Edit error: %s", err)
	}

	if err := sync.WaitForDrain(cancelCtx); err != nil {
		Err.Fatalf("Drain error: %s", err)
	}

	documentJson, err := json.MarshalIndent(sync.Display(), "", "    ")
	if err != nil {
		Err.Fatalf("Could not encode document: %s", err)
	}
	Out.Printf("%s", documentJson)
}
