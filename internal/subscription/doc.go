// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package subscription decides what a user may watch.

Components, leaf first:

  - ManifestCache: TTL single-flight cache of GET manifest (cache.Loader)
  - Resolver: fail-closed queries over the cached manifest (Status,
    HasActiveSubscription, IsExpiringSoon, IsInGracePeriod, Refresh)
  - Guard: Loading -> Granted | Denied decision per protected view, with
    bounded retry on transient failures
  - PreCheck: pending-purchase check before plans are shown and again
    immediately before a purchase is submitted
  - WidgetRefresher: periodic forced refresh feeding the account widget

The backend is authoritative. Nothing here computes entitlement from dates;
end_date is only used to fill in hours_remaining near expiry.

Access precedence when several flags are set at once:

	Active > GracePeriod > Expired > Pending > Unknown

has_active_subscription wins over everything else, so a grace-period flag on
an active subscription still grants access.
*/
package subscription
