package editsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

// the feed is a websocket stream of commit notices from the store: after
// each accepted replace, the store pushes the document id and the new
// version. the editor surface uses it to show the remote version next to
// the save indicator. notices for this session's own writes only; the
// feed carries no other-session edits.

type DocumentFeedSettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout        time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultDocumentFeedSettings() *DocumentFeedSettings {
	return &DocumentFeedSettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout:        2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        1 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
	}
}

type RemoteVersionFunction func(version int64)

type feedAuth struct {
	ByJwt      string `json:"by_jwt"`
	DocumentId Id     `json:"document_id"`
	AppVersion string `json:"app_version,omitempty"`
}

type feedNotice struct {
	DocumentId Id    `json:"document_id"`
	Version    int64 `json:"version"`
}

type DocumentFeed struct {
	ctx    context.Context
	cancel context.CancelFunc

	feedUrl    string
	documentId Id
	auth       *SessionAuth

	settings *DocumentFeedSettings

	stateLock     sync.Mutex
	remoteVersion int64

	versionMonitor   *Monitor
	versionCallbacks *CallbackList[RemoteVersionFunction]
}

func NewDocumentFeedWithDefaults(
	ctx context.Context,
	feedUrl string,
	documentId Id,
	auth *SessionAuth,
) *DocumentFeed {
	return NewDocumentFeed(ctx, feedUrl, documentId, auth, DefaultDocumentFeedSettings())
}

func NewDocumentFeed(
	ctx context.Context,
	feedUrl string,
	documentId Id,
	auth *SessionAuth,
	settings *DocumentFeedSettings,
) *DocumentFeed {
	cancelCtx, cancel := context.WithCancel(ctx)
	feed := &DocumentFeed{
		ctx:              cancelCtx,
		cancel:           cancel,
		feedUrl:          feedUrl,
		documentId:       documentId,
		auth:             auth,
		settings:         settings,
		versionMonitor:   NewMonitor(),
		versionCallbacks: NewCallbackList[RemoteVersionFunction](),
	}
	go feed.run()
	return feed
}

func (self *DocumentFeed) run() {
	defer self.cancel()

	authBytes, err := json.Marshal(&feedAuth{
		ByJwt:      self.auth.ByJwt,
		DocumentId: self.documentId,
		AppVersion: self.auth.AppVersion,
	})
	if err != nil {
		return
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		connect := func() (*websocket.Conn, error) {
			ws, _, err := dialer.DialContext(self.ctx, self.feedUrl, nil)
			if err != nil {
				return nil, err
			}

			success := false
			defer func() {
				if !success {
					ws.Close()
				}
			}()

			ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
			if err := ws.WriteMessage(websocket.BinaryMessage, authBytes); err != nil {
				return nil, err
			}
			ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
			if messageType, message, err := ws.ReadMessage(); err != nil {
				return nil, err
			} else {
				// verify the auth echo
				switch messageType {
				case websocket.BinaryMessage:
					if !bytes.Equal(authBytes, message) {
						return nil, fmt.Errorf("Auth response error: bad bytes.")
					}
				default:
					return nil, fmt.Errorf("Auth response error.")
				}
			}

			success = true
			return ws, nil
		}

		ws, err := connect()
		if err != nil {
			glog.Infof("[feed]auth error %s = %s\n", self.documentId, err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
							// note that for websocket a deadline timeout cannot be recovered
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					messageType, message, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[feed]%s<- error = %s\n", self.documentId, err)
						return
					}

					switch messageType {
					case websocket.BinaryMessage:
						if 0 == len(message) {
							// ping
							glog.V(2).Infof("[feed]ping %s<-\n", self.documentId)
							continue
						}

						notice := &feedNotice{}
						if err := json.Unmarshal(message, notice); err != nil {
							glog.Infof("[feed]bad notice %s<- = %s\n", self.documentId, err)
							continue
						}
						if notice.DocumentId == self.documentId {
							self.updateRemoteVersion(notice.Version)
						}
					default:
						glog.V(2).Infof("[feed]other=%d %s<-\n", messageType, self.documentId)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		reconnect = NewReconnect(self.settings.ReconnectTimeout)
		c()
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

// versions only move forward. stale notices after a reconnect are dropped.
func (self *DocumentFeed) updateRemoteVersion(version int64) {
	self.stateLock.Lock()
	if version <= self.remoteVersion {
		self.stateLock.Unlock()
		return
	}
	self.remoteVersion = version
	self.stateLock.Unlock()

	for _, versionCallback := range self.versionCallbacks.Get() {
		callback := versionCallback
		HandleError(func() {
			callback(version)
		})
	}
	self.versionMonitor.NotifyAll()
}

func (self *DocumentFeed) RemoteVersion() int64 {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.remoteVersion
}

// returns a function to remove the callback
func (self *DocumentFeed) AddRemoteVersionCallback(versionCallback RemoteVersionFunction) func() {
	return self.versionCallbacks.Add(versionCallback)
}

// blocks until the remote version reaches `minVersion`
func (self *DocumentFeed) WaitForVersion(ctx context.Context, minVersion int64) error {
	for {
		self.stateLock.Lock()
		notify := self.versionMonitor.NotifyChannel()
		done := minVersion <= self.remoteVersion
		self.stateLock.Unlock()

		if done {
			return nil
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return ctx.Err()
		case <-self.ctx.Done():
			return fmt.Errorf("feed closed")
		}
	}
}

func (self *DocumentFeed) Close() {
	self.cancel()
}
