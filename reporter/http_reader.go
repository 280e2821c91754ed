// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"io"
	"net/http"
	"net/url"
)

type HttpReader struct {
	serverIP   string // listen ip
	serverPort string // listen port
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return &HttpReader{
		serverIP:   serverIP,
		serverPort: serverPort,
	}
}

func (hr *HttpReader) get(path string) (int, string, error) {
	resp, err := http.Get("http://" + hr.serverIP + ":" + hr.serverPort + path)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}

func (hr *HttpReader) GetHello() (string, error) {
	_, body, err := hr.get(ROUTE_HELLO)
	return body, err
}

func (hr *HttpReader) GetFill(btcTxID string) (int, string, error) {
	return hr.get(ROUTE_FILLS + "/" + url.PathEscape(btcTxID))
}

func (hr *HttpReader) GetFillsByStatus(status string) (int, string, error) {
	return hr.get(ROUTE_FILLS + "?status=" + url.QueryEscape(status))
}
