// Package frame provides per-frame scheduling for the animate loop.
//
// A Scheduler plays the role of a display's refresh callback: Next blocks
// until the next frame boundary. Ticker fires on the wall clock at a fixed
// rate; Manual is stepped explicitly and is what tests drive.
//
//	sched := frame.NewTicker(60)
//	defer sched.Stop()
//	for {
//	    f, err := sched.Next(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    draw(f)
//	}
//
// Meter smooths the observed frame rate for display.
package frame
