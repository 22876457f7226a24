package editsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// the remote document store as seen by the sync. the one write operation
// is "replace document": the full snapshot goes up, the server's
// canonical copy comes back. replace is not retried here; retry policy
// belongs to the caller.
type DocumentStore interface {
	GetDocumentSync(documentId Id) (*GetDocumentResult, error)
	ReplaceDocumentSync(replaceDocument *ReplaceDocumentArgs) (*ReplaceDocumentResult, error)
}

type PlanfoldApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewPlanfoldApi(apiUrl string) *PlanfoldApi {
	return NewPlanfoldApiWithContext(context.Background(), apiUrl)
}

func NewPlanfoldApiWithContext(ctx context.Context, apiUrl string) *PlanfoldApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &PlanfoldApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *PlanfoldApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *PlanfoldApi) ByJwt() string {
	return self.byJwt
}

type AuthLoginWithPasswordCallback apiCallback[*AuthLoginWithPasswordResult]

type AuthLoginWithPasswordArgs struct {
	UserAuth string `json:"user_auth"`
	Password string `json:"password"`
}

type AuthLoginWithPasswordResult struct {
	ByJwt string                            `json:"by_jwt,omitempty"`
	Error *AuthLoginWithPasswordResultError `json:"error,omitempty"`
}

type AuthLoginWithPasswordResultError struct {
	Message string `json:"message"`
}

func (self *PlanfoldApi) AuthLoginWithPassword(authLoginWithPassword *AuthLoginWithPasswordArgs, callback AuthLoginWithPasswordCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/auth/login-with-password", self.apiUrl),
		authLoginWithPassword,
		self.byJwt,
		&AuthLoginWithPasswordResult{},
		callback,
	)
}

func (self *PlanfoldApi) AuthLoginWithPasswordSync(authLoginWithPassword *AuthLoginWithPasswordArgs) (*AuthLoginWithPasswordResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/auth/login-with-password", self.apiUrl),
		authLoginWithPassword,
		self.byJwt,
		&AuthLoginWithPasswordResult{},
		NewNoopApiCallback[*AuthLoginWithPasswordResult](),
	)
}

type GetDocumentCallback apiCallback[*GetDocumentResult]

type GetDocumentResult struct {
	Document *Document               `json:"document,omitempty"`
	Error    *GetDocumentResultError `json:"error,omitempty"`
}

type GetDocumentResultError struct {
	Message string `json:"message"`
}

func (self *PlanfoldApi) GetDocument(documentId Id, callback GetDocumentCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/document/%s/complete", self.apiUrl, documentId),
		self.byJwt,
		&GetDocumentResult{},
		callback,
	)
}

func (self *PlanfoldApi) GetDocumentSync(documentId Id) (*GetDocumentResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/document/%s/complete", self.apiUrl, documentId),
		self.byJwt,
		&GetDocumentResult{},
		NewNoopApiCallback[*GetDocumentResult](),
	)
}

type ReplaceDocumentCallback apiCallback[*ReplaceDocumentResult]

type ReplaceDocumentArgs struct {
	DocumentId Id        `json:"document_id"`
	Document   *Document `json:"document"`
}

type ReplaceDocumentResult struct {
	// the server-normalized canonical copy
	Document *Document                   `json:"document,omitempty"`
	Error    *ReplaceDocumentResultError `json:"error,omitempty"`
}

type ReplaceDocumentResultError struct {
	Message string `json:"message"`
}

func (self *PlanfoldApi) ReplaceDocument(replaceDocument *ReplaceDocumentArgs, callback ReplaceDocumentCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/document/%s/replace", self.apiUrl, replaceDocument.DocumentId),
		replaceDocument,
		self.byJwt,
		&ReplaceDocumentResult{},
		callback,
	)
}

func (self *PlanfoldApi) ReplaceDocumentSync(replaceDocument *ReplaceDocumentArgs) (*ReplaceDocumentResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/document/%s/replace", self.apiUrl, replaceDocument.DocumentId),
		replaceDocument,
		self.byJwt,
		&ReplaceDocumentResult{},
		NewNoopApiCallback[*ReplaceDocumentResult](),
	)
}

func (self *PlanfoldApi) Close() {
	self.cancel()
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "text/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "text/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
