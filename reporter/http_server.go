// This is a http type of reporter.
// It fetches data from the fill log
// and publishes on the http routes.

package reporter

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/btcaction"
)

const (
	ROUTE_HELLO = "/hello"
	ROUTE_FILLS = "/fills"
	ROUTE_FILL  = "/fills/:txid"

	DEFAULT_LIST_LIMIT = 100
	SHUTDOWN_TIMEOUT   = 5 * time.Second
)

// Fill is the json view of a btcaction.FillAction.
type Fill struct {
	TxID            string    `json:"txid"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	BorrowerAddress string    `json:"borrower_address"`
	LenderAddress   string    `json:"lender_address,omitempty"`
	Amount          int64     `json:"amount"`
	BlockHeight     int64     `json:"block_height,omitempty"`
	BlockHash       string    `json:"block_hash,omitempty"`
	EvmBorrower     string    `json:"evm_borrower,omitempty"`
	EvmTxHash       string    `json:"evm_tx_hash,omitempty"`
}

func newFill(f btcaction.FillAction) Fill {
	return Fill{
		TxID:            f.TxHash,
		Status:          string(f.Status),
		CreatedAt:       f.CreatedAt.UTC(),
		BorrowerAddress: f.BorrowerAddress,
		LenderAddress:   f.LenderAddress,
		Amount:          f.Amount,
		BlockHeight:     f.BlockNumber,
		BlockHash:       f.BlockHash,
		EvmBorrower:     f.EvmBorrower,
		EvmTxHash:       f.EvmTxHash,
	}
}

func newFills(fs []btcaction.FillAction) []Fill {
	out := make([]Fill, 0, len(fs))
	for _, f := range fs {
		out = append(out, newFill(f))
	}
	return out
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data source
	filldb btcaction.FillStorage
}

func NewHttpReporter(serverIP string, serverPort string, filldb btcaction.FillStorage) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		filldb:     filldb,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(ROUTE_HELLO, Hello)
	router.GET(ROUTE_FILLS, h.Fills)
	router.GET(ROUTE_FILL, h.Fill)

	return router
}

// Run serves until ctx is done, then shuts the server down.
func (h *HttpReporter) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.serverIP + ":" + h.serverPort,
		Handler: h.SetupRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", srv.Addr).Info("http reporter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Example route.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

// Fills lists fills, filtered by status or borrower.
func (h *HttpReporter) Fills(c *gin.Context) {
	status := c.Query("status")
	borrower := c.Query("borrower")

	if status != "" && borrower != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only one of status or borrower may be provided"})
		return
	}

	var (
		fills []btcaction.FillAction
		err   error
	)
	switch {
	case status != "":
		s := btcaction.FillStatus(status)
		if s != btcaction.FillPending && s != btcaction.FillConfirmed && s != btcaction.FillLent {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status " + status})
			return
		}
		fills, err = h.filldb.GetFillsByStatus(s)
	case borrower != "":
		fills, err = h.filldb.GetFillsByBorrower(borrower)
	default:
		limit := DEFAULT_LIST_LIMIT
		if l := c.Query("limit"); l != "" {
			if limit, err = strconv.Atoi(l); err != nil || limit <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
		}
		fills, err = h.filldb.ListFills(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newFills(fills)})
}

// Fill publishes a single fill by btc txid.
func (h *HttpReporter) Fill(c *gin.Context) {
	txid := c.Param("txid")

	fills, err := h.filldb.GetFillByTxHash(txid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(fills) > 0 {
		c.JSON(http.StatusOK, gin.H{"data": newFill(fills[0])})
	} else {
		c.JSON(http.StatusNotFound, gin.H{"error": "No fill found"})
	}
}
