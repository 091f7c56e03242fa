package main

import (
	"context"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/apps"
	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/room"
)

func (cli *commandLine) addRoom(number, roomType, block string, capacity, floor int) error {
	ctx := context.Background()
	number = core.CleanString(number)
	roomType = core.CleanString(roomType, true /* lower */)
	now := time.Now().UTC()

	switch roomType {
	case room.TypeSingle, room.TypeDouble, room.TypeTriple, room.TypeQuad: // pass
	default:
		return apps.NewArgumentError(fmt.Sprintf("unknown room type %q", roomType))
	}

	if err := cli.roomRepo.CheckNumberUniqueness(ctx, number); err != nil {
		return err
	}

	rm := room.Room{
		Number:    number,
		Floor:     floor,
		Type:      roomType,
		Capacity:  capacity,
		Status:    room.StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if block != "" {
		rm.Block = null.StringFrom(block)
	}
	_, err := cli.roomRepo.CreateRoom(ctx, rm)
	return err
}
