package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

type handler struct {
	repo   storage.Repository
	logger *zap.Logger
}

func (h *handler) health(c *gin.Context) {
	if err := h.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listVaults(c *gin.Context) {
	vaults, err := h.repo.ListVaults(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	out := make([]vaultResponse, 0, len(vaults))
	for _, v := range vaults {
		out = append(out, mapVault(v))
	}
	c.JSON(http.StatusOK, gin.H{"vaults": out})
}

func (h *handler) getVault(c *gin.Context) {
	v, ok := h.loadVault(c)
	if !ok {
		return
	}
	shareholders, err := h.repo.ListShareholders(c.Request.Context(), v.ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	resp := mapVault(v)
	resp.Shareholders = make([]shareholderResponse, 0, len(shareholders))
	for _, sh := range shareholders {
		resp.Shareholders = append(resp.Shareholders, mapShareholder(sh))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) listShareholders(c *gin.Context) {
	v, ok := h.loadVault(c)
	if !ok {
		return
	}
	shareholders, err := h.repo.ListShareholders(c.Request.Context(), v.ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	out := make([]shareholderResponse, 0, len(shareholders))
	for _, sh := range shareholders {
		out = append(out, mapShareholder(sh))
	}
	c.JSON(http.StatusOK, gin.H{"shareholders": out})
}

func (h *handler) listTransactions(c *gin.Context) {
	v, ok := h.loadVault(c)
	if !ok {
		return
	}
	address := c.Param("shareholder")
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid shareholder address: "+address)
		return
	}

	sh, err := h.repo.FindShareholder(c.Request.Context(), v.ID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondNotFound(c, "Shareholder "+address+" not found in vault "+v.Address)
			return
		}
		h.internalError(c, err)
		return
	}

	txs, err := h.repo.ListShareholderTransactions(c.Request.Context(), sh.ID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, mapTransaction(tx))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// loadVault resolves the :address parameter. It writes the error response itself.
func (h *handler) loadVault(c *gin.Context) (model.Vault, bool) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid address format: "+address)
		return model.Vault{}, false
	}
	v, err := h.repo.FindVaultByAddress(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondNotFound(c, "Vault "+address+" not found.")
			return model.Vault{}, false
		}
		h.internalError(c, err)
		return model.Vault{}, false
	}
	return v, true
}

func (h *handler) internalError(c *gin.Context, err error) {
	h.logger.Error("api request failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
	respondWithError(c, http.StatusInternalServerError, errCodeInternal, "Internal server error")
}
