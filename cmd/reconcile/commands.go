package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/bootstrap"
)

type buildFunc func(ctx context.Context) (*bootstrap.Services, func(), error)

func newRootCmd(build buildFunc) *cobra.Command {
	root := &cobra.Command{
		Use:          "reconcile",
		Short:        "Tareas programadas del motor de facturación",
		SilenceUsage: true,
	}
	root.AddCommand(
		newCheckCmd(build),
		newApplyScheduledCmd(build),
		newRebuildCmd(build),
		newDriftCmd(build),
	)
	return root
}

// withServices construye los servicios, ejecuta fn y libera las conexiones.
func withServices(cmd *cobra.Command, build buildFunc, fn func(ctx context.Context, svc *bootstrap.Services) error) error {
	ctx := cmd.Context()
	svc, cleanup, err := build(ctx)
	defer cleanup()
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func newCheckCmd(build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compara cada suscripción con el procesador y registra las divergencias",
		Long: `Recorre todas las suscripciones vinculadas, las compara con el procesador de pagos
y registra un informe de divergencia por cada diferencia. No corrige nada: use "rebuild".

Ejemplo:
  reconcile check`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, build, func(ctx context.Context, svc *bootstrap.Services) error {
				res, err := svc.Reconciler.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revisadas=%d divergencias=%d fallos=%d\n", res.Checked, res.Drifted, res.Failed)
				if res.Failed > 0 {
					return fmt.Errorf("%d suscripciones no se pudieron revisar", res.Failed)
				}
				return nil
			})
		},
	}
}

func newApplyScheduledCmd(build buildFunc) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "apply-scheduled",
		Short: "Aplica los cambios de plan programados que ya vencieron",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			return withServices(cmd, build, func(ctx context.Context, svc *bootstrap.Services) error {
				res, err := svc.Reconciler.ApplyDue(ctx, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "vencidos=%d aplicados=%d fallos=%d\n", res.Due, res.Applied, res.Failed)
				if res.Failed > 0 {
					return fmt.Errorf("%d cambios programados fallaron", res.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instante de referencia RFC3339 (por defecto ahora)")
	return cmd
}

func newRebuildCmd(build buildFunc) *cobra.Command {
	var salonID string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reconstruye el snapshot de un salón a partir del procesador",
		Long: `Sobrescribe el snapshot local del salón con el estado del procesador de pagos.
Es la corrección manual tras revisar un informe de divergencia.

Ejemplo:
  reconcile rebuild --salon 6f1c...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, build, func(ctx context.Context, svc *bootstrap.Services) error {
				resp, err := svc.Lifecycle.RebuildFromProcessor(ctx, salonID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "salón %s: plan=%s ciclo=%s estado=%s\n", resp.SalonID, resp.Tier, resp.BillingCycle, resp.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&salonID, "salon", "", "ID del salón")
	_ = cmd.MarkFlagRequired("salon")
	return cmd
}

func newDriftCmd(build buildFunc) *cobra.Command {
	var page dto.PageRequest
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Lista los informes de divergencia pendientes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, build, func(ctx context.Context, svc *bootstrap.Services) error {
				reports, err := svc.Lifecycle.ListDrift(ctx, page)
				if err != nil {
					return err
				}
				if len(reports) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "sin divergencias pendientes")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "DETECTADO\tSALÓN\tOPERACIÓN\tCAMPOS\tDETALLE")
				for _, r := range reports {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						r.DetectedAt.Format(time.RFC3339), r.SalonID, r.Operation, strings.Join(r.Fields, ","), r.Detail)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&page.Limit, "limit", 50, "máximo de informes (hasta 100)")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "desplazamiento")
	return cmd
}
