package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"chesssync/internal/server/core"
	"chesssync/internal/server/service"
)

// GetState returns the current game. With ?wait=true&version=N it blocks
// until the game moves past version N, the wait timeout passes, or the
// server shuts down. The request context does not report client disconnects,
// so an abandoned wait lasts until the timeout.
func (h *HTTPHandler) GetState(c *fiber.Ctx) error {
	if c.Query("wait", "false") != "true" {
		st, err := h.svc.GetState(c.Context())
		if err != nil {
			return h.writeError(c, err)
		}
		return c.JSON(toStateResponse(st))
	}

	version, err := strconv.ParseInt(c.Query("version", ""), 10, 64)
	if err != nil || version < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid version",
			Code:    core.ErrInvalidRequest,
			Details: "version must be a non-negative integer when wait=true",
		})
	}

	st, err := h.svc.WaitForChange(c.Context(), version)
	if err != nil {
		if c.Context().Err() != nil {
			// Server shutting down
			return nil
		}
		return h.writeError(c, err)
	}
	return c.JSON(toStateResponse(st))
}

// GetBoard returns an ASCII board for terminal clients
func (h *HTTPHandler) GetBoard(c *fiber.Ctx) error {
	fen, board, err := h.svc.Board(c.Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(core.BoardResponse{FEN: fen, Board: board})
}

// SubmitMove applies a visitor move
func (h *HTTPHandler) SubmitMove(c *fiber.Ctx) error {
	req, err := validatedBody[core.MoveRequest](c)
	if err != nil {
		return err
	}

	res, err := h.svc.SubmitMove(c.Context(), service.MoveInput{
		From:      req.From,
		To:        req.To,
		Promotion: req.Promotion,
		Version:   req.Version,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toMoveResponse(res))
}

// SubmitAdminMove applies an admin move or reset. requireAdmin runs first.
func (h *HTTPHandler) SubmitAdminMove(c *fiber.Ctx) error {
	req, err := validatedBody[core.AdminMoveRequest](c)
	if err != nil {
		return err
	}

	res, err := h.svc.SubmitAdminMove(c.Context(), service.AdminMoveInput{
		MoveInput: service.MoveInput{
			From:      req.From,
			To:        req.To,
			Promotion: req.Promotion,
			Version:   req.Version,
		},
		Reset: req.Reset,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(toMoveResponse(res))
}

func toStateResponse(st service.State) core.StateResponse {
	return core.StateResponse{
		FEN:         st.FEN,
		Turn:        st.Turn,
		Status:      st.Status.String(),
		IsCheck:     st.IsCheck,
		IsCheckmate: st.IsCheckmate,
		IsStalemate: st.IsStalemate,
		IsDraw:      st.IsDraw,
		History:     st.History,
		Version:     st.Version,
	}
}

func toMoveResponse(res service.MoveResult) core.MoveResponse {
	resp := core.MoveResponse{StateResponse: toStateResponse(res.State)}
	if res.Move != nil {
		resp.Move = &core.MoveInfo{From: res.Move.From, To: res.Move.To, SAN: res.Move.SAN}
	}
	return resp
}
