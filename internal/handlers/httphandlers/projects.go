package httphandlers

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gitlab.com/freelanced/escrowd/internal/escrow"
	"gitlab.com/freelanced/escrowd/internal/lib"
	"golang.org/x/exp/slices"
)

func (h *HTTPHandler) CreateProject(ctx *gin.Context) {
	var req CreateProjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	freelancer, err := parseAddr(req.Freelancer)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	arbiter, err := parseAddr(req.Arbiter)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.CreateProject(ctx.Request.Context(), from, freelancer, arbiter, req.Description, time.Unix(req.Deadline, 0))
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, CreatedResponse{ProjectID: id})
}

func (h *HTTPHandler) GetProjects(ctx *gin.Context) {
	projects, err := h.service.ListProjects(ctx.Request.Context())
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}

	data := make([]Project, 0, len(projects))
	for _, snap := range projects {
		data = append(data, mapProject(snap))
	}
	slices.SortStableFunc(data, func(a Project, b Project) bool {
		return a.ID < b.ID
	})

	ctx.JSON(http.StatusOK, ProjectsResponse{
		Count:    h.service.ProjectCount(),
		Projects: data,
	})
}

func (h *HTTPHandler) GetProject(ctx *gin.Context) {
	id, ok := h.projectID(ctx)
	if !ok {
		return
	}

	snap, err := h.service.GetProject(ctx.Request.Context(), id)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapProject(snap))
}

func (h *HTTPHandler) GetMilestone(ctx *gin.Context) {
	id, index, ok := h.milestoneRef(ctx)
	if !ok {
		return
	}

	snap, err := h.service.GetMilestone(ctx.Request.Context(), id, index)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapMilestone(snap))
}

func (h *HTTPHandler) GetVault(ctx *gin.Context) {
	id, ok := h.projectID(ctx)
	if !ok {
		return
	}

	balance, err := h.service.LockedBalance(id)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	transfers, err := h.service.Transfers(id)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, VaultResponse{
		ProjectID:     id,
		LockedBalance: balance.String(),
		Transfers:     mapTransfers(transfers),
	})
}

func (h *HTTPHandler) AddMilestone(ctx *gin.Context) {
	id, ok := h.projectID(ctx)
	if !ok {
		return
	}
	var req AddMilestoneRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	index, err := h.service.AddMilestone(ctx.Request.Context(), id, from, req.Description, amount)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, IndexResponse{Index: index})
}

func (h *HTTPHandler) StartProject(ctx *gin.Context) {
	id, ok := h.projectID(ctx)
	if !ok {
		return
	}
	var req StartProjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	funds, err := parseAmount(req.Funds)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.StartProject(ctx.Request.Context(), id, from, funds); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CancelProject(ctx *gin.Context) {
	h.projectCommand(ctx, h.service.CancelProject)
}

func (h *HTTPHandler) RefundProject(ctx *gin.Context) {
	h.projectCommand(ctx, h.service.RefundProject)
}

func (h *HTTPHandler) SubmitMilestone(ctx *gin.Context) {
	id, index, ok := h.milestoneRef(ctx)
	if !ok {
		return
	}
	var req SubmitMilestoneRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SubmitMilestone(ctx.Request.Context(), id, index, from, req.DeliverableHash); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ApproveMilestone(ctx *gin.Context) {
	h.milestoneCommand(ctx, h.service.ApproveMilestone)
}

func (h *HTTPHandler) DisputeMilestone(ctx *gin.Context) {
	h.milestoneCommand(ctx, h.service.DisputeMilestone)
}

func (h *HTTPHandler) ResolveDispute(ctx *gin.Context) {
	id, index, ok := h.milestoneRef(ctx)
	if !ok {
		return
	}
	var req ResolveDisputeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.ResolveDispute(ctx.Request.Context(), id, index, from, *req.ApproveFreelancer); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

//
// helpers
//

func (h *HTTPHandler) projectCommand(ctx *gin.Context, cmd func(ctx context.Context, id uint64, from common.Address) error) {
	id, ok := h.projectID(ctx)
	if !ok {
		return
	}
	var req FromRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := cmd(ctx.Request.Context(), id, from); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) milestoneCommand(ctx *gin.Context, cmd func(ctx context.Context, id uint64, index int, from common.Address) error) {
	id, index, ok := h.milestoneRef(ctx)
	if !ok {
		return
	}
	var req FromRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseAddr(req.From)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := cmd(ctx.Request.Context(), id, index, from); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) projectID(ctx *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(ctx.Param("ID"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) milestoneRef(ctx *gin.Context) (uint64, int, bool) {
	id, ok := h.projectID(ctx)
	if !ok {
		return 0, 0, false
	}
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil || index < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone index"})
		return 0, 0, false
	}
	return id, index, true
}

func parseAddr(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, lib.WrapError(escrow.ErrInvalidArgument, fmt.Errorf("invalid address %q", s))
	}
	// HexToAddress normalizes case, so mixed-case duplicates compare equal
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, lib.WrapError(escrow.ErrInvalidArgument, fmt.Errorf("invalid amount %q", s))
	}
	return amount, nil
}
