package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelflow/internal/printers"
	"github.com/orrn/labelflow/internal/store"
)

// AdminHandler serves configuration read access and the stop-the-world
// reload. Reload swaps both stores wholesale from their JSON files; the
// operator is expected to quiesce traffic first — concurrent requests
// against a half-swapped configuration are not defended against.
type AdminHandler struct {
	profiles     *store.ProfileStore
	printerStore *store.PrinterStore
	sender       *printers.TCPSender
	profilesPath string
	printersPath string
}

func NewAdminHandler(profiles *store.ProfileStore, printerStore *store.PrinterStore, sender *printers.TCPSender, profilesPath, printersPath string) *AdminHandler {
	return &AdminHandler{
		profiles:     profiles,
		printerStore: printerStore,
		sender:       sender,
		profilesPath: profilesPath,
		printersPath: printersPath,
	}
}

func (h *AdminHandler) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": h.profiles.List()})
}

type PrinterInfo struct {
	*store.Printer
	TotalSends int64  `json:"total_sends"`
	Reachable  *bool  `json:"reachable,omitempty"`
	ProbeError string `json:"probe_error,omitempty"`
}

func (h *AdminHandler) ListPrinters(c *gin.Context) {
	probe := c.Query("probe") == "true"

	list := h.printerStore.List()
	out := make([]PrinterInfo, 0, len(list))
	for _, p := range list {
		info := PrinterInfo{Printer: p, TotalSends: h.sender.SendCount(p.Name)}
		if probe {
			reachable := h.sender.Probe(p) == nil
			info.Reachable = &reachable
			if !reachable {
				info.ProbeError = "connection failed"
			}
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"printers": out})
}

func (h *AdminHandler) Reload(c *gin.Context) {
	newProfiles, err := store.LoadProfiles(h.profilesPath)
	if err != nil {
		fail(c, err)
		return
	}
	newPrinters, err := store.LoadPrinters(h.printersPath)
	if err != nil {
		fail(c, err)
		return
	}

	if err := h.profiles.ReplaceAll(newProfiles.List()); err != nil {
		fail(c, err)
		return
	}
	if err := h.printerStore.ReplaceAll(newPrinters.List()); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profiles": len(newProfiles.List()),
		"printers": len(newPrinters.List()),
	})
}
